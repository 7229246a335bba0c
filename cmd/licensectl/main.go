// Command licensectl drives the device license state from a terminal.
//
//	licensectl check
//	licensectl activate -key ABCD-EFGH-JKLM-NPQR
//	licensectl trial -school "Lycée Descartes"
//	licensectl logout
//	licensectl status
package main

import (
	"context"
	"encoding/json"
	"flag"
	"fmt"
	"log"
	"net/http"
	"os"
	"os/signal"
	"syscall"

	"github.com/joho/godotenv"
	"github.com/schoolresults/server/internal/auth"
	"github.com/schoolresults/server/internal/config"
	"github.com/schoolresults/server/internal/licenseclient"
	"github.com/schoolresults/server/internal/logger"
	"go.uber.org/zap"
)

func main() {
	_ = godotenv.Load(".env")

	if len(os.Args) < 2 {
		usage()
	}

	cfg, err := config.LoadClient()
	if err != nil {
		log.Fatalf("Failed to load configuration: %v", err)
	}

	zlog, err := logger.New(os.Getenv("APP_ENV"), "licensectl")
	if err != nil {
		log.Fatalf("Failed to build logger: %v", err)
	}
	defer func() { _ = zlog.Sync() }()

	lc, err := newContext(cfg, zlog)
	if err != nil {
		zlog.Fatal("failed to initialise license state", zap.Error(err))
	}

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	var res licenseclient.Result
	switch cmd, args := os.Args[1], os.Args[2:]; cmd {
	case "check", "status":
		res = lc.CheckLicense(ctx)
	case "activate":
		fs := flag.NewFlagSet("activate", flag.ExitOnError)
		key := fs.String("key", "", "license key")
		_ = fs.Parse(args)
		res = lc.ActivateLicense(ctx, *key)
	case "trial":
		fs := flag.NewFlagSet("trial", flag.ExitOnError)
		school := fs.String("school", "", "school name")
		_ = fs.Parse(args)
		res = lc.StartTrialLicense(ctx, *school)
	case "logout":
		res = lc.Logout(ctx)
	default:
		usage()
	}

	printState(lc.Snapshot(), res)
	if !res.Success {
		os.Exit(1)
	}
}

func usage() {
	fmt.Fprintln(os.Stderr, "usage: licensectl check|status|activate -key KEY|trial -school NAME|logout")
	os.Exit(2)
}

func newContext(cfg *config.ClientConfig, zlog *zap.Logger) (*licenseclient.LicenseContext, error) {
	path := cfg.StateFile
	if path == "" {
		p, err := licenseclient.DefaultStatePath()
		if err != nil {
			return nil, err
		}
		path = p
	}

	opts := []licenseclient.Option{licenseclient.WithLogger(zlog)}
	pub, err := cfg.VerifyKey()
	if err != nil {
		return nil, err
	}
	if pub != nil {
		opts = append(opts, licenseclient.WithVerifier(auth.NewLicenseTokenVerifier(pub)))
	}

	api := licenseclient.NewClient(cfg.ServerURL, &http.Client{Timeout: cfg.Timeout})
	return licenseclient.New(api, licenseclient.NewFileStore(path), opts...)
}

type stateOutput struct {
	Status            licenseclient.Status `json:"status"`
	DeviceID          string               `json:"deviceId"`
	LicenseKey        string               `json:"licenseKey,omitempty"`
	School            string               `json:"school,omitempty"`
	ExpiryDate        string               `json:"expiryDate,omitempty"`
	RemainingDays     int                  `json:"remainingDays,omitempty"`
	ShowExpiryWarning bool                 `json:"showExpiryWarning,omitempty"`
	Offline           bool                 `json:"offline,omitempty"`
	licenseclient.Result
}

func printState(s licenseclient.Snapshot, res licenseclient.Result) {
	out := stateOutput{
		Status:            s.Status,
		DeviceID:          s.DeviceID,
		RemainingDays:     s.RemainingDays,
		ShowExpiryWarning: s.ShowExpiryWarning,
		Offline:           s.Offline,
		Result:            res,
	}
	if s.License != nil {
		out.LicenseKey = logger.MaskKey(s.License.LicenseKey)
		out.School = s.License.School.Name
		out.ExpiryDate = s.License.ExpiryDate.Format("2006-01-02")
	}
	enc := json.NewEncoder(os.Stdout)
	enc.SetIndent("", "  ")
	_ = enc.Encode(out)
}
