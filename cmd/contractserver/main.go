// Command contractserver runs the wireskip contract server: the HTTP
// API, the settlement tracker's tick loop and the withdrawal watcher.
package main

import (
	"context"
	"crypto/ed25519"
	"crypto/rand"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"sync"
	"syscall"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/sirupsen/logrus"
	"github.com/spf13/cobra"

	"wireskip-contract/internal/contract/api"
	"wireskip-contract/internal/contract/config"
	"wireskip-contract/internal/contract/directory"
	"wireskip-contract/internal/contract/ledger"
	"wireskip-contract/internal/contract/model"
	"wireskip-contract/internal/contract/paysys"
	"wireskip-contract/internal/contract/sign"
	"wireskip-contract/internal/contract/store"
	"wireskip-contract/internal/contract/tracker"
	"wireskip-contract/internal/contract/withdraw"
)

const version = "0.1.0"

func main() {
	logger := logrus.StandardLogger()
	logger.SetFormatter(&logrus.TextFormatter{FullTimestamp: true})

	var configPath, envPath string
	root := &cobra.Command{
		Use:   "contractserver",
		Short: "run the contract server",
		RunE: func(cmd *cobra.Command, args []string) error {
			return run(configPath, envPath, logger)
		},
	}
	root.Flags().StringVar(&configPath, "config", "config.yaml", "config file to load")
	root.Flags().StringVar(&envPath, "env", ".env", "dotenv overlay file")
	root.AddCommand(initCmd())
	if err := root.Execute(); err != nil {
		os.Exit(1)
	}
}

func initCmd() *cobra.Command {
	var configPath, keyPath string
	cmd := &cobra.Command{
		Use:   "init",
		Short: "write a starting config and keypair",
		RunE: func(cmd *cobra.Command, args []string) error {
			if configPath == "" {
				configPath = "config.yaml"
			}
			if keyPath == "" {
				keyPath = "key.priv"
			}
			pub, priv, err := ed25519.GenerateKey(rand.Reader)
			if err != nil {
				return fmt.Errorf("generate keypair: %w", err)
			}
			if err := os.WriteFile(keyPath, priv, 0o600); err != nil {
				return fmt.Errorf("write %s: %w", keyPath, err)
			}
			if err := os.WriteFile(keyPath+".pub", pub, 0o644); err != nil {
				return fmt.Errorf("write %s.pub: %w", keyPath, err)
			}
			cfg := config.Default()
			cfg.KeyFile = keyPath
			if err := config.Write(configPath, cfg); err != nil {
				return err
			}
			fmt.Printf("wrote %s and %s (+.pub)\n", configPath, keyPath)
			return nil
		},
	}
	cmd.Flags().StringVar(&configPath, "config", "config.yaml", "config file to write")
	cmd.Flags().StringVar(&keyPath, "key", "key.priv", "keypair file to write")
	return cmd
}

func run(configPath, envPath string, logger *logrus.Logger) error {
	cfg, err := config.Load(configPath, envPath)
	if err != nil {
		return err
	}

	priv, err := os.ReadFile(cfg.KeyFile)
	if err != nil {
		return fmt.Errorf("read keyfile %s: %w", cfg.KeyFile, err)
	}
	signer := sign.NewSigner(ed25519.PrivateKey(priv))

	st, err := store.New(cfg.StoreRoot)
	if err != nil {
		return err
	}
	processStart := time.Now().Unix()
	evlog := st.NewLog(processStart)

	ldgr := ledger.New(cfg.Servicekey.Currency)
	if data, ok, err := st.LoadBalances(); err != nil {
		return fmt.Errorf("load balances: %w", err)
	} else if ok {
		if err := ldgr.LoadFrom(data); err != nil {
			return fmt.Errorf("restore balances: %w", err)
		}
	}

	calc := tracker.NewDefaultShareCalc(cfg.Servicekey.Value, cfg.FeeFraction())
	trk := tracker.New(tracker.Config{
		Calc:     calc,
		Interval: cfg.Settlement.SubmissionWindow,
		Ledger:   ldgr,
		Store:    st,
		Log:      evlog,
		Logger:   logger,
	})

	dir := directory.New(0)
	client := paysys.New(10 * time.Second)
	pipeline := withdraw.NewPipeline(ldgr, trk, client, cfg.Payout, logger)

	now := func() int64 { return time.Now().Unix() }
	public := func() model.Public {
		return model.Public{
			Endpoint:   cfg.Address,
			PubKey:     signer.PublicKey(),
			Version:    version,
			Enrollment: dir.Enrollment(),
			Servicekey: cfg.Servicekey,
			Settlement: cfg.Settlement,
			Payout:     cfg.Payout,
		}
	}

	deps := &api.Deps{
		Signer:    signer,
		Directory: dir,
		Tracker:   trk,
		Ledger:    ldgr,
		Withdraw:  pipeline,
		Now:       now,
		Public:    public,
		Logger:    logger,
	}

	router := newRouter(deps, cfg)

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	var watcherWG sync.WaitGroup
	watcherWG.Add(1)
	go func() {
		defer watcherWG.Done()
		pipeline.RunWatcher(ctx, checkPeriod(cfg.Payout))
	}()

	tickerDone := make(chan struct{})
	go func() {
		defer close(tickerDone)
		next := trk.Tick(now())
		for {
			wait := time.Duration(next-now()) * time.Second
			if wait < time.Second {
				wait = time.Second
			}
			select {
			case <-ctx.Done():
				return
			case <-time.After(wait):
				trk.TxnTick(now())
				next = trk.Tick(now())
			}
		}
	}()

	srv := &http.Server{Addr: cfg.Address, Handler: router}
	go func() {
		logger.Infof("contractserver listening on %s", cfg.Address)
		if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			logger.WithError(err).Error("contractserver: listen failed")
			stop()
		}
	}()

	<-ctx.Done()
	logger.Info("contractserver: shutting down")
	shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	_ = srv.Shutdown(shutdownCtx)
	<-tickerDone
	watcherWG.Wait()
	trk.Shutdown()
	return nil
}

func checkPeriod(payout []model.PayoutCfg) time.Duration {
	for _, p := range payout {
		if p.CheckPeriod > 0 {
			return time.Duration(p.CheckPeriod) * time.Second
		}
	}
	return 30 * time.Second
}

func newRouter(deps *api.Deps, cfg config.Cfg) http.Handler {
	r := chi.NewRouter()
	r.Use(middleware.Logger)
	r.Use(middleware.Recoverer)

	r.Get("/info", deps.Info)
	r.Get("/relays", deps.Relays)
	r.Post("/relays", deps.RegisterRelay)
	r.Delete("/relays", deps.DeregisterRelay)
	r.Post("/issue-accesskeys", deps.IssueAccesskeys)
	r.Post("/servicekey/activate", func(w http.ResponseWriter, req *http.Request) {
		deps.ActivateServicekey(w, req, cfg.Servicekey.Duration, cfg.Settlement.SubmissionWindow)
	})
	r.Post("/submit", deps.Submit)
	r.Post("/withdraw", deps.Withdraw)
	r.Post("/verify-withdrawal-request", deps.VerifyWithdrawalRequest)
	r.Get("/payout/balance", deps.PayoutBalance)
	r.Handle("/metrics", promhttp.Handler())

	return r
}
