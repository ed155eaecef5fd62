package cli

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"os"

	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/common/hexutil"
	"github.com/spf13/cobra"

	"github.com/vietddude/batcher/internal/control"
	"github.com/vietddude/batcher/internal/ffi"
	"github.com/vietddude/batcher/internal/infra/storage"
)

var verifyFile string

var verifyCmd = &cobra.Command{
	Use:   "verify [merkle_root]",
	Short: "Recompute a batch root and compare it with the expected one",
	Long: `Verify reads a serialized batch from --file, or from the payload cache and
archive when no file is given, and checks it against the expected merkle root.`,
	Args: cobra.ExactArgs(1),
	Run:  runVerify,
}

func init() {
	verifyCmd.Flags().StringVar(&verifyFile, "file", "", "serialized batch file")
	rootCmd.AddCommand(verifyCmd)
}

func runVerify(cmd *cobra.Command, args []string) {
	cfg := loadConfig()

	rootBytes, err := hexutil.Decode(args[0])
	if err != nil || len(rootBytes) != ffi.RootSize {
		slog.Error("Invalid merkle root, expected 0x-prefixed 32 bytes", "root", args[0])
		os.Exit(1)
	}
	root := common.BytesToHash(rootBytes)

	var payload []byte
	if verifyFile != "" {
		payload, err = os.ReadFile(verifyFile)
		if err != nil {
			slog.Error("Failed to read batch file", "error", err)
			os.Exit(1)
		}
	} else {
		ctx := context.Background()
		stores, err := control.OpenStores(ctx, cfg)
		if err != nil {
			slog.Error("Failed to open stores", "error", err)
			os.Exit(1)
		}
		defer stores.Close()

		payload, err = loadPayload(ctx, stores, root)
		if err != nil {
			slog.Error("Failed to load batch", "root", root.Hex(), "error", err)
			os.Exit(1)
		}
	}

	ok := ffi.VerifyBytes(payload, root)
	fmt.Println(ok)
	if !ok {
		os.Exit(1)
	}
}

func loadPayload(ctx context.Context, stores *control.Stores, root common.Hash) ([]byte, error) {
	payload, err := stores.Cache.Get(ctx, root)
	if err == nil {
		return payload, nil
	}
	if !errors.Is(err, storage.ErrPayloadNotFound) {
		slog.Warn("Payload cache read failed, using archive", "error", err)
	}

	batch, err := stores.Repo.GetByRoot(ctx, root)
	if err != nil {
		return nil, err
	}
	return batch.Payload, nil
}
