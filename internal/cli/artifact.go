package cli

import (
	"fmt"
	"os"
	"path/filepath"
	"strconv"

	"github.com/spf13/cobra"
)

var artifactHeaders = []string{"ID", "FILENAME", "CONTENT_TYPE", "SIZE", "SHA256", "CREATED"}

func artifactRow(a *ArtifactResponse) []string {
	return []string{a.ID, a.Filename, a.ContentType, strconv.FormatInt(a.SizeBytes, 10), a.SHA256, a.CreatedAt}
}

// NewArtifactCmd создаёт группу команд для artifacts.
func NewArtifactCmd(clientFn func() *Client, outputFn func() *Output) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "artifact",
		Short: "Manage task artifacts",
	}

	cmd.AddCommand(
		newArtifactUploadCmd(clientFn, outputFn),
		newArtifactListCmd(clientFn, outputFn),
		newArtifactDownloadCmd(clientFn, outputFn),
	)

	return cmd
}

func newArtifactUploadCmd(clientFn func() *Client, outputFn func() *Output) *cobra.Command {
	var name string

	cmd := &cobra.Command{
		Use:   "upload TASK_ID FILE",
		Short: "Upload a file as a task artifact",
		Args:  cobra.ExactArgs(2),
		RunE: func(cmd *cobra.Command, args []string) error {
			client := clientFn()
			out := outputFn()

			f, err := os.Open(args[1])
			if err != nil {
				return err
			}
			defer f.Close()

			if name == "" {
				name = filepath.Base(args[1])
			}

			a, err := client.UploadArtifact(args[0], name, f)
			if err != nil {
				return err
			}

			out.Success(fmt.Sprintf("Artifact uploaded: %s", a.ID))
			out.Print(artifactHeaders, [][]string{artifactRow(a)}, a)
			return nil
		},
	}

	cmd.Flags().StringVar(&name, "name", "", "Filename to record (default: base name of FILE)")

	return cmd
}

func newArtifactListCmd(clientFn func() *Client, outputFn func() *Output) *cobra.Command {
	return &cobra.Command{
		Use:   "list TASK_ID",
		Short: "List task artifacts in upload order",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			client := clientFn()
			out := outputFn()

			artifacts, err := client.ListArtifacts(args[0])
			if err != nil {
				return err
			}

			rows := make([][]string, len(artifacts))
			for i := range artifacts {
				rows[i] = artifactRow(&artifacts[i])
			}

			out.Print(artifactHeaders, rows, artifacts)
			return nil
		},
	}
}

func newArtifactDownloadCmd(clientFn func() *Client, outputFn func() *Output) *cobra.Command {
	var output string

	cmd := &cobra.Command{
		Use:   "download ARTIFACT_ID",
		Short: "Download artifact content",
		Long:  "Download artifact content. Use -o - to write to stdout.",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			client := clientFn()
			out := outputFn()

			if output == "-" {
				_, err := client.DownloadArtifact(args[0], out.Writer())
				return err
			}

			// Имя файла известно только после ответа: пишем во временный файл.
			dir := "."
			if output != "" {
				dir = filepath.Dir(output)
			}
			tmp, err := os.CreateTemp(dir, ".download-*")
			if err != nil {
				return err
			}
			defer os.Remove(tmp.Name())

			filename, err := client.DownloadArtifact(args[0], tmp)
			if closeErr := tmp.Close(); err == nil {
				err = closeErr
			}
			if err != nil {
				return err
			}

			target := output
			if target == "" {
				target = filepath.Base(filename)
				if filename == "" || target == "." || target == string(filepath.Separator) {
					target = args[0]
				}
			}
			if err := os.Rename(tmp.Name(), target); err != nil {
				return err
			}

			out.Success(fmt.Sprintf("Saved to %s", target))
			return nil
		},
	}

	cmd.Flags().StringVarP(&output, "output", "o", "", "Output path (default: server filename in current dir)")

	return cmd
}
