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
	leaderCIDFlag = &cli.IntFlag{
		Name:     "leader-cid",
		Required: true,
		Usage:    "vsock CID of the pool leader to request secret state from",
	}
	leaderPortFlag = &cli.IntFlag{
		Name:  "leader-port",
		Value: 5100,
		Usage: "vsock port the leader is listening on",
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
	extendMeasurementFileFlag = &cli.StringSliceFlag{
		Name:  "extend-measurement-file",
		Usage: "path to a local config or pre-provisioned key file to fold into a reserved PCR before joining; repeatable",
	}
	receiveTimeoutFlag = &cli.DurationFlag{
		Name:  "receive-timeout",
		Value: keysync.DefaultReceiveTimeout,
		Usage: "how long a single handshake receive waits for the leader before aborting",
	}
)

func main() {
	app := &cli.App{
		Name:  "keysync-follower",
		Usage: "Join a pool by running the key-sync handshake against its leader",
		Flags: append([]cli.Flag{
			leaderCIDFlag, leaderPortFlag, platformFlag, governanceFlag,
			safeAddressFlag, safeChainIDFlag, safeThresholdFlag, safeTransactionAPIFlag,
			statePathFlag, extendMeasurementFileFlag, receiveTimeoutFlag, flags.LogServiceFlagFn("keysync-follower"),
		}, flags.CommonFlags...),
		Action: runFollower,
	}

	if err := app.Run(os.Args); err != nil {
		log.Fatal(err)
	}
}

func runFollower(cCtx *cli.Context) error {
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

	if existing, err := store.Export(context.Background()); err == nil {
		logger.Info("secret state already installed, skipping handshake", "state_bytes", len(existing))
		return nil
	} else if !errors.Is(err, keystate.ErrNoState) {
		logger.Error("failed to check for existing secret state", "err", err)
		return err
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
	defer func() {
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
		defer cancel()
		_ = metricsSrv.Shutdown(shutdownCtx)
	}()

	if paths := cCtx.StringSlice(extendMeasurementFileFlag.Name); len(paths) > 0 {
		if cCtx.String(platformFlag.Name) != "nitro" {
			logger.Warn("extend-measurement-file given but platform is not 'nitro', skipping PCR extension")
		} else {
			blobs := make([][]byte, 0, len(paths))
			for _, p := range paths {
				blob, err := os.ReadFile(p)
				if err != nil {
					logger.Error("failed to read measurement extension file", "path", p, "err", err)
					return err
				}
				blobs = append(blobs, blob)
			}
			if err := attestation.ExtendMeasurement(blobs); err != nil {
				logger.Error("failed to extend measurement before joining pool", "err", err)
				return err
			}
			logger.Info("extended local measurement with pre-provisioned config/keys", "files", len(blobs))
		}
	}

	cid := uint32(cCtx.Int(leaderCIDFlag.Name))
	port := uint32(cCtx.Int(leaderPortFlag.Name))

	logger.Info("dialing leader", "cid", cid, "port", port)
	conn, err := transport.DialLeader(cid, port)
	if err != nil {
		logger.Error("failed to dial leader", "err", err)
		return err
	}
	defer conn.Close()

	state, err := keysync.Follower(conn, attestor, oracle, cCtx.Duration(receiveTimeoutFlag.Name), logger)
	if err != nil {
		logger.Error("handshake failed", "err", err)
		return err
	}

	if err := store.Install(context.Background(), state); err != nil {
		logger.Error("failed to install received secret state", "err", err)
		return err
	}

	logger.Info("joined pool successfully", "state_bytes", len(state))
	return nil
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
	return keystate.NewFileStore(path, []byte("keysync-follower"), []byte(path), logger)
}
