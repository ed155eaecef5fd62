package cli

import (
	"context"
	"fmt"
	"log/slog"
	"os"
	"text/tabwriter"

	"github.com/ethereum/go-ethereum/common"
	"github.com/spf13/cobra"

	"github.com/vietddude/batcher/internal/batcher"
	"github.com/vietddude/batcher/internal/control"
)

var userCmd = &cobra.Command{
	Use:   "user [address]",
	Short: "Show the payment state of a submitter",
	Args:  cobra.ExactArgs(1),
	Run:   runUser,
}

func init() {
	rootCmd.AddCommand(userCmd)
}

func runUser(cmd *cobra.Command, args []string) {
	if !common.IsHexAddress(args[0]) {
		fmt.Printf("Invalid address: %s\n", args[0])
		os.Exit(1)
	}
	addr := common.HexToAddress(args[0])

	cfg := loadConfig()
	clients, err := control.NewEthClients(cfg.Eth)
	if err != nil {
		slog.Error("Failed to create eth clients", "error", err)
		os.Exit(1)
	}
	defer clients.Close()

	svc, err := batcher.NewService(batcher.Options{
		Retry:           cfg.Retry,
		Payment:         clients.Payment,
		PaymentFallback: clients.PaymentFallback,
		Gas:             clients.Gas,
		GasFallback:     clients.GasFallback,
	})
	if err != nil {
		slog.Error("Failed to create batcher", "error", err)
		os.Exit(1)
	}

	state, err := svc.UserState(context.Background(), addr)
	if err != nil {
		slog.Error("Failed to read user state", "address", addr.Hex(), "error", err)
		os.Exit(1)
	}

	w := tabwriter.NewWriter(os.Stdout, 0, 0, 3, ' ', tabwriter.Debug)
	_, _ = fmt.Fprintln(w, "ADDRESS\tBALANCE (WEI)\tNONCE\tUNLOCKED")
	_, _ = fmt.Fprintf(w, "%s\t%s\t%s\t%t\n", addr.Hex(), state.Balance.Dec(), state.Nonce.Dec(), state.Unlocked)
	_ = w.Flush()
}
