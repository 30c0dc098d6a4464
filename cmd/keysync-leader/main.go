package main

import (
	"context"
	"errors"
	"fmt"
	"log"
	"log/slog"
	"math/big"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	gethcommon "github.com/ethereum/go-ethereum/common"
	"github.com/urfave/cli/v2"

	"github.com/ruteri/tee-service-provisioning-backend/attestation"
	"github.com/ruteri/tee-service-provisioning-backend/cmd/flags"
	"github.com/ruteri/tee-service-provisioning-backend/committee"
	"github.com/ruteri/tee-service-provisioning-backend/common"
	"github.com/ruteri/tee-service-provisioning-backend/keystate"
	"github.com/ruteri/tee-service-provisioning-backend/keysync"
	"github.com/ruteri/tee-service-provisioning-backend/metrics"
	"github.com/ruteri/tee-service-provisioning-backend/transport"
)

var (
	vsockPortFlag = &cli.IntFlag{
		Name:  "vsock-port",
		Value: 5100,
		Usage: "vsock port to listen on for followers joining the pool",
	}
	platformFlag = &cli.StringFlag{
		Name:  "platform",
		Value: "nitro-dummy",
		Usage: "attestation platform profile: 'nitro' or 'nitro-dummy'",
	}
	governanceFlag = &cli.StringFlag{
		Name:  "governance",
		Value: "testing",
		Usage: "committee authorization mode: 'testing' or 'safe'",
	}
	safeAddressFlag = &cli.StringFlag{
		Name:  "safe-address",
		Usage: "Gnosis Safe wallet address (required if governance is 'safe')",
	}
	safeChainIDFlag = &cli.Int64Flag{
		Name:  "safe-chain-id",
		Usage: "chain ID the Safe lives on (required if governance is 'safe')",
	}
	safeThresholdFlag = &cli.IntFlag{
		Name:  "safe-threshold",
		Usage: "minimum confirmations required (required if governance is 'safe')",
	}
	safeTransactionAPIFlag = &cli.StringFlag{
		Name:  "safe-transaction-api",
		Usage: "base URL of the Safe Transaction Service (required if governance is 'safe')",
	}
	statePathFlag = &cli.StringFlag{
		Name:  "state-file",
		Usage: "path to the local encrypted secret-state file; if unset, state is held in memory only",
	}
	stateSeedFlag = &cli.StringFlag{
		Name:  "state-seed",
		Usage: "seed the initial secret state from a file, for the first member of a new pool",
	}
	receiveTimeoutFlag = &cli.DurationFlag{
		Name:  "receive-timeout",
		Value: keysync.DefaultReceiveTimeout,
		Usage: "how long a single handshake receive waits for the follower before aborting",
	}
)

func main() {
	app := &cli.App{
		Name:  "keysync-leader",
		Usage: "Serve the key-sync handshake to admit followers into the pool",
		Flags: append([]cli.Flag{
			vsockPortFlag, platformFlag, governanceFlag,
			safeAddressFlag, safeChainIDFlag, safeThresholdFlag, safeTransactionAPIFlag,
			statePathFlag, stateSeedFlag, receiveTimeoutFlag, flags.LogServiceFlagFn("keysync-leader"),
		}, flags.CommonFlags...),
		Action: runLeader,
	}

	if err := app.Run(os.Args); err != nil {
		log.Fatal(err)
	}
}

func runLeader(cCtx *cli.Context) error {
	logger := flags.SetupLogger(cCtx)

	attestor, err := buildAttestor(cCtx)
	if err != nil {
		logger.Error("failed to construct attestor", "err", err)
		return err
	}

	oracle, err := buildOracle(cCtx, attestor, logger)
	if err != nil {
		logger.Error("failed to construct committee oracle", "err", err)
		return err
	}

	store, err := buildStore(cCtx, logger)
	if err != nil {
		logger.Error("failed to construct secret state store", "err", err)
		return err
	}

	if seedPath := cCtx.String(stateSeedFlag.Name); seedPath != "" {
		seed, err := os.ReadFile(seedPath)
		if err != nil {
			logger.Error("failed to read state seed file", "err", err)
			return err
		}
		if err := store.Install(context.Background(), seed); err != nil {
			logger.Error("failed to install seeded secret state", "err", err)
			return err
		}
		logger.Info("seeded initial secret state", "bytes", len(seed))
	}

	metricsSrv, err := metrics.New(common.PackageName, cCtx.String("metrics-addr"))
	if err != nil {
		logger.Error("failed to construct metrics server", "err", err)
		return err
	}
	go func() {
		if err := metricsSrv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			logger.Error("metrics server stopped", "err", err)
		}
	}()

	port := uint32(cCtx.Int(vsockPortFlag.Name))
	listener, err := transport.ListenFollowers(port)
	if err != nil {
		logger.Error("failed to listen on vsock", "err", err)
		return err
	}
	logger.Info("listening for followers", "vsock_port", port)

	exit := make(chan os.Signal, 1)
	signal.Notify(exit, os.Interrupt, syscall.SIGTERM)

	go func() {
		for {
			conn, err := listener.Accept()
			if err != nil {
				logger.Error("accept failed", "err", err)
				return
			}
			go serveOneFollower(conn, attestor, oracle, store, cCtx.Duration(receiveTimeoutFlag.Name), logger)
		}
	}()

	<-exit
	logger.Info("shutdown signal received")
	_ = listener.Close()

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()
	_ = metricsSrv.Shutdown(shutdownCtx)

	return nil
}

func serveOneFollower(conn keysync.Stream, attestor attestation.Attestor, oracle committee.Oracle, store keystate.Store, receiveTimeout time.Duration, logger *slog.Logger) {
	closer, ok := conn.(interface{ Close() error })
	if ok {
		defer closer.Close()
	}

	secretState, err := store.Export(context.Background())
	if err != nil {
		logger.Error("no secret state available to transport", "err", err)
		return
	}

	if err := keysync.Leader(conn, attestor, oracle, secretState, receiveTimeout, logger); err != nil {
		logger.Error("handshake failed", "err", err)
	}
}

func buildAttestor(cCtx *cli.Context) (attestation.Attestor, error) {
	switch cCtx.String(platformFlag.Name) {
	case "nitro":
		return attestation.NewNitroAttestor(), nil
	case "nitro-dummy":
		return attestation.NewDummyAttestor(), nil
	default:
		return nil, fmt.Errorf("unknown platform profile %q", cCtx.String(platformFlag.Name))
	}
}

func buildOracle(cCtx *cli.Context, attestor attestation.Attestor, logger *slog.Logger) (committee.Oracle, error) {
	switch cCtx.String(governanceFlag.Name) {
	case "testing":
		return committee.NewTestingOracle(attestor, logger), nil
	case "safe":
		addr := cCtx.String(safeAddressFlag.Name)
		if addr == "" || cCtx.Int64(safeChainIDFlag.Name) == 0 || cCtx.Int(safeThresholdFlag.Name) == 0 || cCtx.String(safeTransactionAPIFlag.Name) == "" {
			return nil, errors.New("safe-address, safe-chain-id, safe-threshold and safe-transaction-api are all required when governance is 'safe'")
		}
		return committee.NewSafeOracle(
			gethcommon.HexToAddress(addr),
			big.NewInt(cCtx.Int64(safeChainIDFlag.Name)),
			cCtx.Int(safeThresholdFlag.Name),
			cCtx.String(safeTransactionAPIFlag.Name),
			nil,
		), nil
	default:
		return nil, fmt.Errorf("unknown governance mode %q", cCtx.String(governanceFlag.Name))
	}
}

func buildStore(cCtx *cli.Context, logger *slog.Logger) (keystate.Store, error) {
	path := cCtx.String(statePathFlag.Name)
	if path == "" {
		return keystate.NewMemoryStore(), nil
	}
	return keystate.NewFileStore(path, []byte("keysync-leader"), []byte(path), logger)
}
