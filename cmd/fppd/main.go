// main.go - Floating-point protocol daemon.
//
// Wires the record store, the Groth16 and ring-signature oracles, the abuse
// guard, and the REST API into one process. With -demo it instead runs a
// self-contained scenario on an in-memory store: two deposits, a shielded
// payment with a real proof, and a full withdrawal round trip.
//
// Usage:
//
//	fppd -config config.json
//	fppd -demo
package main

import (
	"errors"
	"flag"
	"fmt"
	"net/http"
	"os"
	"path/filepath"

	"github.com/consensys/gnark/backend/groth16"
	"github.com/consensys/gnark/constraint"
	"github.com/rs/zerolog"

	"fpp/internal/guard"
	"fpp/internal/protocol"
	"fpp/internal/ring"
	"fpp/internal/storage"
	"fpp/internal/token"
	"fpp/internal/wallet"
	"fpp/internal/zk"
)

const version = "1.0.0"

func main() {
	configPath := flag.String("config", "config.json", "path to the daemon configuration")
	demo := flag.Bool("demo", false, "run the in-memory demo scenario and exit")
	flag.Parse()

	cfg, err := LoadConfig(*configPath)
	if err != nil {
		fmt.Fprintf(os.Stderr, "config: %v\n", err)
		os.Exit(1)
	}
	if err := cfg.Validate(); err != nil {
		fmt.Fprintf(os.Stderr, "config: %v\n", err)
		os.Exit(1)
	}

	log, closeLog, err := NewLogger(cfg.LogLevel, cfg.LogFile)
	if err != nil {
		fmt.Fprintf(os.Stderr, "logger: %v\n", err)
		os.Exit(1)
	}
	defer closeLog()

	if err := run(cfg, log, *demo); err != nil {
		log.Error().Err(err).Msg("daemon terminated")
		os.Exit(1)
	}
}

func run(cfg *Config, log zerolog.Logger, demo bool) error {
	// Proof system: compile once, load or generate keys.
	if err := os.MkdirAll(cfg.KeyDir, 0755); err != nil {
		return fmt.Errorf("key dir: %w", err)
	}
	log.Info().Msg("compiling transfer circuit")
	ccs, err := zk.CompileTransferCircuit()
	if err != nil {
		return err
	}
	provingKey, verifyingKey, err := zk.SetupOrLoadKeys(ccs,
		filepath.Join(cfg.KeyDir, "transfer_pk.bin"),
		filepath.Join(cfg.KeyDir, "transfer_vk.bin"))
	if err != nil {
		return fmt.Errorf("proof keys: %w", err)
	}

	// Record store: LevelDB for the daemon, memory for the demo.
	var db storage.Database
	if demo {
		db = storage.NewMemDB()
	} else {
		if err := os.MkdirAll(cfg.DataDir, 0755); err != nil {
			return fmt.Errorf("data dir: %w", err)
		}
		db, err = storage.NewLevelDB(filepath.Join(cfg.DataDir, "ledger"))
		if err != nil {
			return fmt.Errorf("open store: %w", err)
		}
	}
	defer db.Close()

	tokens := token.NewMemLedger()
	engine := protocol.NewEngine(protocol.NewState(db), tokens)
	engine.SetLogger(log)
	engine.SetProofVerifier(zk.NewGroth16Verifier(verifyingKey))
	engine.SetRingVerifier(ring.NewVerifier())
	engine.SetGuard(guard.NewMonitor(guard.Config{
		MaxRequests:     cfg.GuardMaxRequests,
		RefillPeriod:    cfg.GuardRefillSeconds,
		FlashLoanWindow: cfg.GuardFlashLoanWindow,
	}))

	authority, err := parseAddress(cfg.Authority)
	if err != nil {
		return fmt.Errorf("authority: %w", err)
	}
	treasury, err := parseAddress(cfg.Treasury)
	if err != nil {
		return fmt.Errorf("treasury: %w", err)
	}
	assetID, err := parseAddress(cfg.AssetID)
	if err != nil {
		return fmt.Errorf("asset id: %w", err)
	}
	err = engine.Initialize(authority, treasury, assetID, cfg.DepositFeeBps, cfg.WithdrawalFeeBps)
	if err != nil && !errors.Is(err, protocol.ErrAccountAlreadyInitialized) {
		return fmt.Errorf("initialize: %w", err)
	}

	if demo {
		return runDemo(engine, tokens, treasury, ccs, provingKey, log)
	}

	health := NewHealthChecker(version)
	health.RegisterComponent("store", func() error {
		_, err := engine.Protocol()
		return err
	})
	metrics := NewMetrics()
	server := NewServer(engine, metrics, health, log)

	log.Info().Str("addr", cfg.ListenAddr).Msg("serving")
	return http.ListenAndServe(cfg.ListenAddr, server.Routes())
}

// runDemo walks the whole protocol on a manual clock: deposit, maturity,
// shielded payment with a real Groth16 proof and ring signature, withdrawal
// request, cooldown, completion.
func runDemo(engine *protocol.Engine, tokens *token.MemLedger, treasury protocol.Address, ccs constraint.ConstraintSystem, provingKey groth16.ProvingKey, log zerolog.Logger) error {
	now := int64(1_700_000_000)
	engine.SetNowFunc(func() int64 { return now })

	alice, err := wallet.New("alice")
	if err != nil {
		return err
	}
	bob, err := wallet.New("bob")
	if err != nil {
		return err
	}
	aliceAddr := protocol.Address{0x0a}
	bobAddr := protocol.Address{0x0b}

	// Fund the rails: alice holds base asset, the treasury holds float for
	// gross-based payouts.
	tokens.Credit(aliceAddr, 100_000_000)
	tokens.Credit(treasury, 100_000_000)

	// Deposit: two points' worth of value, two unit commitments.
	commitments, err := alice.MintDepositNotes(2 * protocol.PointSize)
	if err != nil {
		return err
	}
	if err := engine.Deposit(aliceAddr, 2*protocol.PointSize, commitments); err != nil {
		return fmt.Errorf("deposit: %w", err)
	}
	log.Info().Uint64("balance", tokens.Balance(aliceAddr)).Msg("demo: deposit accepted")

	// Shielded payment: one point to bob, one back to alice as change.
	now += protocol.MaturityDelay
	toBob, err := zk.NewNote(1, bob.Sk)
	if err != nil {
		return err
	}
	change, err := zk.NewNote(1, alice.Sk)
	if err != nil {
		return err
	}
	transfer, err := zk.ProveTransfer(
		[zk.TransferArity]zk.TransferInput{
			{Note: alice.Notes[0], Sk: alice.Sk},
			{Note: alice.Notes[1], Sk: alice.Sk},
		},
		[zk.TransferArity]*zk.Note{toBob, change},
		ccs, provingKey,
	)
	if err != nil {
		return fmt.Errorf("prove transfer: %w", err)
	}

	payment := protocol.PrivacyPayment{
		Sender:            aliceAddr,
		InputPoints:       []protocol.Hash{zk.ToHash(transfer.Commitments[0]), zk.ToHash(transfer.Commitments[1])},
		InputNullifiers:   []protocol.Hash{zk.ToHash(transfer.Nullifiers[0]), zk.ToHash(transfer.Nullifiers[1])},
		OutputCommitments: []protocol.Hash{zk.ToHash(transfer.Outputs[0]), zk.ToHash(transfer.Outputs[1])},
		Proof:             transfer.Proof,
		Ring:              [][]byte{bob.RingPk, alice.RingPk},
	}
	digest := protocol.TransferDigest(payment.InputNullifiers, payment.OutputCommitments, payment.Proof)
	payment.RingSignature, err = alice.SignPayment(digest, payment.Ring, 1)
	if err != nil {
		return fmt.Errorf("ring sign: %w", err)
	}
	if err := engine.PrivacyPayment(payment); err != nil {
		return fmt.Errorf("payment: %w", err)
	}
	bob.AddNote(toBob)
	for _, idx := range []int{0, 1} {
		if err := alice.MarkSpent(idx); err != nil {
			return fmt.Errorf("mark spent: %w", err)
		}
	}
	alice.AddNote(change)
	log.Info().Msg("demo: privacy payment applied")

	// Withdrawal: bob exits his point. The flash-loan window does not bind
	// him; he never deposited.
	now += protocol.MaturityDelay
	key, err := engine.RequestWithdrawal(bobAddr, 0,
		[]protocol.Hash{zk.ToHash(toBob.Cm)},
		[]protocol.Hash{zk.ToHash(toBob.NullifierFor(bob.Sk))})
	if err != nil {
		return fmt.Errorf("request withdrawal: %w", err)
	}
	log.Info().Stringer("request", key).Msg("demo: withdrawal requested")

	now += protocol.WithdrawalCooldown
	if err := engine.CompleteWithdrawal(bobAddr, key); err != nil {
		return fmt.Errorf("complete withdrawal: %w", err)
	}
	log.Info().Uint64("payout", tokens.Balance(bobAddr)).Msg("demo: withdrawal completed")

	ps, err := engine.Protocol()
	if err != nil {
		return err
	}
	log.Info().
		Uint64("total_deposited", ps.TotalDeposited).
		Uint64("total_withdrawn", ps.TotalWithdrawn).
		Uint64("total_fees", ps.TotalFees).
		Uint64("total_points", ps.TotalPoints).
		Msg("demo: final ledger counters")
	return nil
}
