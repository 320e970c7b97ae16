package cli

import (
	"fmt"
	"media-bundler/internal/models"
	"mime"
	"path"

	"github.com/spf13/cobra"
)

// CatalogCmd seeds projects and media items for local development
func CatalogCmd(app *App) *cobra.Command {
	catalogCmd := &cobra.Command{
		Use:   "catalog",
		Short: "Manage the project media catalog",
	}

	projectCmd := &cobra.Command{
		Use:   "add-project <project-ref>",
		Short: "Create or update a project",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			org, _ := cmd.Flags().GetString("org")
			address, _ := cmd.Flags().GetString("address")
			city, _ := cmd.Flags().GetString("city")

			project := &models.Project{Ref: args[0], Organization: org, Address: address, City: city}
			if err := app.Store.UpsertProject(cmd.Context(), project); err != nil {
				return fmt.Errorf("failed to save project: %w", err)
			}
			fmt.Fprintf(cmd.OutOrStdout(), "Project %s saved.\n", project.Ref)
			return nil
		},
	}
	projectCmd.Flags().String("org", "", "Organization name")
	projectCmd.Flags().String("address", "", "Street address")
	projectCmd.Flags().String("city", "", "City")

	mediaCmd := &cobra.Command{
		Use:   "add-media <project-ref> <key>",
		Short: "Attach a media item to a project",
		Args:  cobra.ExactArgs(2),
		RunE: func(cmd *cobra.Command, args []string) error {
			url, _ := cmd.Flags().GetString("url")
			filename, _ := cmd.Flags().GetString("filename")
			mediaType, _ := cmd.Flags().GetString("type")
			size, _ := cmd.Flags().GetInt64("size")

			if filename == "" {
				filename = path.Base(args[1])
			}
			if mediaType == "" {
				mediaType = mime.TypeByExtension(path.Ext(filename))
			}

			item := &models.MediaItem{
				ProjectRef: args[0],
				Key:        args[1],
				CDNURL:     url,
				Filename:   filename,
				Size:       size,
				MediaType:  mediaType,
			}
			if err := app.Store.AddMediaItem(cmd.Context(), item); err != nil {
				return fmt.Errorf("failed to add media item: %w", err)
			}
			fmt.Fprintf(cmd.OutOrStdout(), "Media item %s added to %s.\n", item.ID, item.ProjectRef)
			return nil
		},
	}
	mediaCmd.Flags().String("url", "", "CDN URL to download from instead of the media base URL")
	mediaCmd.Flags().String("filename", "", "Name inside the archive (defaults to the key's base name)")
	mediaCmd.Flags().String("type", "", "MIME type (guessed from the extension when empty)")
	mediaCmd.Flags().Int64("size", 0, "Declared size in bytes")

	catalogCmd.AddCommand(projectCmd)
	catalogCmd.AddCommand(mediaCmd)
	return catalogCmd
}
