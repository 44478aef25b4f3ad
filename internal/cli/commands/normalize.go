package commands

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"

	"github.com/alvesdmateus/image-publisher/internal/naming"
	"github.com/alvesdmateus/image-publisher/internal/runenv"
	"github.com/alvesdmateus/image-publisher/internal/trigger"
)

var (
	normalizeRepository string
	normalizeRef        string
)

var normalizeCmd = &cobra.Command{
	Use:   "normalize",
	Short: "Print the image names derived from a repository and ref",
	Long: `Prints IMAGE_REPOSITORY and IMAGE_TAG as KEY=value lines. The repository
and ref default to GITHUB_REPOSITORY and GITHUB_REF.`,
	Args: cobra.NoArgs,
	RunE: func(cmd *cobra.Command, args []string) error {
		repo := normalizeRepository
		if repo == "" {
			repo = os.Getenv(trigger.EnvRepository)
		}
		ref := normalizeRef
		if ref == "" {
			ref = os.Getenv(trigger.EnvRef)
		}
		if repo == "" {
			return fmt.Errorf("repository is required (--repository or %s)", trigger.EnvRepository)
		}

		names := naming.Normalize(repo, ref)
		fmt.Fprint(cmd.OutOrStdout(), formatEnv(map[string]string{
			runenv.KeyImageRepository: names.Repository,
			runenv.KeyImageTag:        names.Tag,
		}))
		return nil
	},
}

func init() {
	normalizeCmd.Flags().StringVarP(&normalizeRepository, "repository", "r", "", "repository full name (owner/name)")
	normalizeCmd.Flags().StringVar(&normalizeRef, "ref", "", "full ref, e.g. refs/heads/main")
}
