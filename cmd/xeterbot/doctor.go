package main

import (
	"context"
	"fmt"
	"net"
	"os"
	"os/exec"
	"path/filepath"
	"time"

	"github.com/dustin/go-humanize"
	"github.com/spf13/cobra"

	"xeterbot/internal/config"
	"xeterbot/internal/history"
)

type checkResult int

const (
	checkPass checkResult = iota
	checkWarn
	checkFail
)

// doctorReport tallies and prints check outcomes.
type doctorReport struct {
	passed, warned, failed int
}

func (r *doctorReport) add(res checkResult, check, detail string) {
	tag := "PASS"
	switch res {
	case checkPass:
		r.passed++
	case checkWarn:
		r.warned++
		tag = "WARN"
	case checkFail:
		r.failed++
		tag = "FAIL"
	}
	fmt.Printf("  [%s] %-20s %s\n", tag, check, detail)
}

func doctorCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "doctor",
		Short: "Run diagnostic checks on your xeterbot installation",
		Long: `Verifies the configuration, the obfuscation engine command, the work
directory, the history database and the chat tokens.`,
		RunE: func(cmd *cobra.Command, args []string) error {
			cfgPath := resolveConfigPath()
			fmt.Printf("xeterbot doctor v%s\n\n", version)

			var rep doctorReport
			if _, err := os.Stat(cfgPath); err != nil {
				rep.add(checkFail, "Config file", "not found at "+cfgPath)
				fmt.Printf("\nRun 'xeterbot init' to create a default configuration.\n")
				return fmt.Errorf("no config")
			}
			rep.add(checkPass, "Config file", cfgPath)

			cfg, err := config.Load(cfgPath)
			if err != nil {
				rep.add(checkFail, "Config validation", err.Error())
				return fmt.Errorf("1 check(s) failed")
			}
			rep.add(checkPass, "Config validation", "valid")

			checkEngine(&rep, cfg.Engine)
			checkWorkDir(&rep, cfg.TempDir())
			if cfg.History.Enabled {
				if err := checkHistory(cfg.History.DBPath); err != nil {
					rep.add(checkFail, "History database", err.Error())
				} else {
					rep.add(checkPass, "History database", cfg.History.DBPath)
				}
			}
			checkTokens(&rep, cfg.Channels)

			rep.add(checkPass, "Size limit", humanize.Bytes(uint64(cfg.Limits.MaxSourceBytes)))

			if cfg.Metrics.Enabled {
				if err := checkListen(cfg.Metrics.Listen); err != nil {
					rep.add(checkWarn, "Metrics listen", fmt.Sprintf("%s may be in use: %v", cfg.Metrics.Listen, err))
				} else {
					rep.add(checkPass, "Metrics listen", cfg.Metrics.Listen+" available")
				}
			}

			if cfg.General.LogFile != "" {
				if err := os.MkdirAll(filepath.Dir(cfg.General.LogFile), 0o755); err != nil {
					rep.add(checkWarn, "Log file", fmt.Sprintf("cannot create log directory: %v", err))
				} else {
					rep.add(checkPass, "Log file", cfg.General.LogFile)
				}
			}

			fmt.Printf("\nResults: %d passed, %d warnings, %d failed\n", rep.passed, rep.warned, rep.failed)
			if rep.failed > 0 {
				return fmt.Errorf("%d check(s) failed", rep.failed)
			}
			if rep.warned == 0 {
				fmt.Println("All checks passed. Run 'xeterbot gateway' to start.")
			}
			return nil
		},
	}
}

func checkEngine(rep *doctorReport, ec config.EngineConfig) {
	bin, err := exec.LookPath(ec.Command[0])
	if err != nil {
		rep.add(checkFail, "Engine command", fmt.Sprintf("%s not found on PATH", ec.Command[0]))
		return
	}
	rep.add(checkPass, "Engine command", bin)

	if ec.WorkDir == "" {
		rep.add(checkWarn, "Engine work dir", "not set, the engine runs in the current directory")
		return
	}
	if info, err := os.Stat(ec.WorkDir); err != nil || !info.IsDir() {
		rep.add(checkFail, "Engine work dir", "not a directory: "+ec.WorkDir)
		return
	}
	rep.add(checkPass, "Engine work dir", ec.WorkDir)
}

func checkWorkDir(rep *doctorReport, dir string) {
	if err := os.MkdirAll(dir, 0o700); err != nil {
		rep.add(checkFail, "Work dir", err.Error())
		return
	}
	probe, err := os.CreateTemp(dir, "doctor-*")
	if err != nil {
		rep.add(checkFail, "Work dir", "not writable: "+err.Error())
		return
	}
	probe.Close()
	os.Remove(probe.Name())
	rep.add(checkPass, "Work dir", dir)
}

// checkHistory opens the store, which runs pending migrations, and reads
// the stats table back.
func checkHistory(dbPath string) error {
	store, err := history.NewSQLiteStore(dbPath, logger)
	if err != nil {
		return err
	}
	defer store.Close()

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	if _, err := store.Stats(ctx); err != nil {
		return fmt.Errorf("cannot query: %w", err)
	}
	return nil
}

func checkTokens(rep *doctorReport, cc config.ChannelsConfig) {
	enabled := 0
	if cc.Discord.Enabled {
		enabled++
		rep.add(checkPass, "Discord token", maskToken(cc.Discord.Token))
	}
	if cc.Telegram.Enabled {
		enabled++
		rep.add(checkPass, "Telegram token", maskToken(cc.Telegram.Token))
	}
	if enabled == 0 {
		rep.add(checkWarn, "Channels", "no chat channel enabled, only 'xeterbot chat' will work")
	}
}

func maskToken(tok string) string {
	if len(tok) <= 8 {
		return "***"
	}
	return tok[:4] + "..." + tok[len(tok)-4:]
}

func checkListen(addr string) error {
	ln, err := net.Listen("tcp", addr)
	if err != nil {
		return err
	}
	return ln.Close()
}
