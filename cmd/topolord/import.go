package main

import (
	"fmt"
	"io"
	"os"
	"strings"

	"github.com/google/uuid"
	log "github.com/sirupsen/logrus"
	"github.com/spf13/cobra"
	"gopkg.in/yaml.v3"

	"github.com/rmax-ai/topolord/pkg/topology"
)

// buildDocument turns one YAML payload into a storable document. The type
// comes from the payload's own `type` field before the fallback; the id
// from the explicit id, then a top-level `id`, then a fresh uuid.
func buildDocument(payload, id string, fallback topology.DocumentType) (topology.Document, error) {
	docType, ok := topology.DetectType(payload, fallback)
	if !ok {
		return topology.Document{}, fmt.Errorf("cannot determine document type; set `type:` in the file or pass --type")
	}
	if id == "" {
		var head struct {
			ID string `yaml:"id"`
		}
		if err := yaml.Unmarshal([]byte(payload), &head); err == nil {
			id = strings.TrimSpace(head.ID)
		}
	}
	if id == "" {
		id = uuid.NewString()
	}
	return topology.Document{ID: id, Type: docType, Payload: payload}, nil
}

func importCmd(a *app) *cobra.Command {
	var (
		docType string
		docID   string
	)
	cmd := &cobra.Command{
		Use:   "import <file.yaml>... | -",
		Short: "Store YAML topology documents, replacing any with the same id",
		Args:  cobra.MinimumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			if docID != "" && len(args) > 1 {
				return fmt.Errorf("--id can only be used with a single file")
			}
			fallback := topology.DocumentType(docType)
			if docType != "" && !fallback.Valid() {
				return fmt.Errorf("unknown document type %q", docType)
			}

			st, err := a.openStore()
			if err != nil {
				return err
			}
			defer st.Close()

			for _, path := range args {
				var data []byte
				if path == "-" {
					data, err = io.ReadAll(cmd.InOrStdin())
				} else {
					data, err = os.ReadFile(path)
				}
				if err != nil {
					return fmt.Errorf("read %s: %w", path, err)
				}

				doc, err := buildDocument(string(data), docID, fallback)
				if err != nil {
					return fmt.Errorf("%s: %w", path, err)
				}
				if err := st.Put(cmd.Context(), doc); err != nil {
					return fmt.Errorf("%s: %w", path, err)
				}
				log.WithFields(log.Fields{"id": doc.ID, "type": doc.Type, "file": path}).Info("document_imported")
				fmt.Fprintf(cmd.OutOrStdout(), "%s %s %s\n", good.Sprint("imported"), doc.ID, subtle.Sprintf("(%s)", doc.Type))
			}
			return nil
		},
	}
	cmd.Flags().StringVar(&docType, "type", "", "Document type when the file has no `type:` field")
	cmd.Flags().StringVar(&docID, "id", "", "Document id (single file only)")
	return cmd
}

func deleteCmd(a *app) *cobra.Command {
	return &cobra.Command{
		Use:   "delete <id>...",
		Short: "Remove documents from the store",
		Args:  cobra.MinimumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			st, err := a.openStore()
			if err != nil {
				return err
			}
			defer st.Close()
			for _, id := range args {
				if err := st.Delete(cmd.Context(), id); err != nil {
					return err
				}
				fmt.Fprintf(cmd.OutOrStdout(), "%s %s\n", good.Sprint("deleted"), id)
			}
			return nil
		},
	}
}
