package main

import (
	"encoding/json"
	"fmt"
	"io"
	"os"

	"github.com/spf13/cobra"

	"github.com/memorykeep/docsync/internal/engine"
)

var (
	partition string
	writeData string
	writeFile string
)

var readCmd = &cobra.Command{
	Use:   "read <kind> <owner>",
	Short: "Read a document",
	Long: `Read the document of one kind for an owner. The result reports which tier
served it: cloud, local-cache, local-fallback or default.`,
	Args: cobra.ExactArgs(2),
	RunE: func(cmd *cobra.Command, args []string) error {
		kind, owner := args[0], args[1]
		return withRuntime(cmd, func(rt *runtime) error {
			if err := requireKind(rt, kind); err != nil {
				return err
			}
			res := rt.hub.Read(cmd.Context(), kind, owner, partition)
			return printJSON(cmd.OutOrStdout(), res)
		})
	},
}

var writeCmd = &cobra.Command{
	Use:   "write <kind> <owner>",
	Short: "Write a document",
	Long: `Write the document of one kind for an owner. The payload is read from
--data, --file, or standard input. An unchanged payload is not uploaded.`,
	Args: cobra.ExactArgs(2),
	RunE: func(cmd *cobra.Command, args []string) error {
		kind, owner := args[0], args[1]
		payload, err := readPayload(cmd.InOrStdin())
		if err != nil {
			return err
		}

		return withRuntime(cmd, func(rt *runtime) error {
			if err := requireKind(rt, kind); err != nil {
				return err
			}
			res := rt.hub.Write(cmd.Context(), kind, owner, partition, payload)
			if err := printJSON(cmd.OutOrStdout(), res); err != nil {
				return err
			}
			if !res.Success {
				return fmt.Errorf("write failed: %s", res.Message)
			}
			return nil
		})
	},
}

var namesCmd = &cobra.Command{
	Use:   "names <owner>",
	Short: "Show an owner's display names merged across partitions",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		return withRuntime(cmd, func(rt *runtime) error {
			res := rt.hub.Aggregate(cmd.Context(), args[0])
			return printJSON(cmd.OutOrStdout(), engine.ToJSON(res))
		})
	},
}

func init() {
	rootCmd.AddCommand(readCmd, writeCmd, namesCmd)

	readCmd.Flags().StringVarP(&partition, "partition", "p", engine.DefaultPartition, "Partition to read")
	writeCmd.Flags().StringVarP(&partition, "partition", "p", engine.DefaultPartition, "Partition to write")
	writeCmd.Flags().StringVarP(&writeData, "data", "d", "", "JSON payload")
	writeCmd.Flags().StringVarP(&writeFile, "file", "f", "", "File holding the JSON payload")
	writeCmd.MarkFlagsMutuallyExclusive("data", "file")
}

func readPayload(stdin io.Reader) (json.RawMessage, error) {
	var (
		data []byte
		err  error
	)
	switch {
	case writeData != "":
		data = []byte(writeData)
	case writeFile != "":
		data, err = os.ReadFile(writeFile)
	default:
		data, err = io.ReadAll(stdin)
	}
	if err != nil {
		return nil, fmt.Errorf("reading payload: %w", err)
	}
	if !json.Valid(data) {
		return nil, fmt.Errorf("payload is not valid JSON")
	}
	return data, nil
}

func requireKind(rt *runtime, kind string) error {
	if _, ok := rt.hub.Syncer(kind); !ok {
		return fmt.Errorf("unknown kind %q (known: %v)", kind, rt.hub.Kinds())
	}
	return nil
}

func printJSON(w io.Writer, v any) error {
	encoder := json.NewEncoder(w)
	encoder.SetIndent("", "  ")
	return encoder.Encode(v)
}

// withRuntime loads the configuration, builds the runtime, runs fn and
// releases the runtime.
func withRuntime(cmd *cobra.Command, fn func(rt *runtime) error) error {
	cfg, err := loadConfig()
	if err != nil {
		return err
	}
	rt, err := newRuntime(cmd.Context(), cfg)
	if err != nil {
		return err
	}
	defer rt.Close()
	return fn(rt)
}
