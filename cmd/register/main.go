// Command register drives the cash shift of one register against a running
// backend: status, open, movement and close.
package main

import (
	"context"
	"encoding/json"
	"errors"
	"flag"
	"fmt"
	"io"
	"os"
	"os/signal"
	"strings"
	"syscall"

	"github.com/shopspring/decimal"
	"go.uber.org/zap"

	"tiendapos/internal/apperr"
	"tiendapos/internal/applog"
	"tiendapos/internal/cache"
	"tiendapos/internal/config"
	"tiendapos/internal/gateway"
	"tiendapos/internal/shift"
)

const usage = `usage: register <command> [flags]

commands:
  status                                   show the open shift and its totals
  open -cash AMOUNT                        open a shift with an initial float
  movement -type IN|OUT -amount N -concept TEXT [-description TEXT]
  close -cash N -card N -confirm [-notes TEXT]
`

func main() {
	cfg := config.Load()
	logger, err := applog.New(cfg.LogLevel)
	if err != nil {
		fmt.Fprintf(os.Stderr, "logger: %v\n", err)
		os.Exit(1)
	}
	defer func() { _ = logger.Sync() }()

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	if cfg.GatewayUsername == "" {
		logger.Fatal("GATEWAY_USERNAME must be set")
	}
	transport := gateway.NewHTTPTransport(cfg.GatewayURL, cfg.GatewayTimeout(), logger)
	if _, err := transport.Login(ctx, cfg.GatewayUsername, cfg.GatewayPassword); err != nil {
		logger.Fatal("login failed", zap.String("gateway", cfg.GatewayURL), zap.Error(err))
	}

	store := cache.Cache(cache.NewMemory())
	if cfg.RedisAddr != "" {
		redisCache := cache.NewRedis(cfg.RedisAddr, cfg.RedisPassword, cfg.RedisDB, "tiendapos:"+cfg.RegisterID+":")
		if err := redisCache.Ping(ctx); err != nil {
			logger.Warn("redis unavailable, using process cache", zap.Error(err))
		} else {
			store = redisCache
			defer redisCache.Close()
		}
	}

	tracker := shift.NewTracker(gateway.NewClient(transport), store, cfg.RegisterID, cfg.CacheTTL(), logger)
	if err := run(ctx, os.Args[1:], tracker, cfg.GatewayUsername, os.Stdout); err != nil {
		if errors.Is(err, flag.ErrHelp) {
			os.Exit(2)
		}
		fmt.Fprintln(os.Stderr, describe(err))
		os.Exit(1)
	}
}

func run(ctx context.Context, args []string, tracker *shift.Tracker, userID string, out io.Writer) error {
	if len(args) == 0 {
		fmt.Fprint(out, usage)
		return flag.ErrHelp
	}

	fs := flag.NewFlagSet(args[0], flag.ContinueOnError)
	fs.SetOutput(out)

	switch args[0] {
	case "status":
		if err := fs.Parse(args[1:]); err != nil {
			return err
		}
		active, err := tracker.Active(ctx)
		if err != nil {
			return err
		}
		if active == nil {
			fmt.Fprintln(out, "no shift is open")
			return nil
		}
		details, err := tracker.Details(ctx)
		if err != nil {
			return err
		}
		return printJSON(out, map[string]any{
			"shift":            details.Shift,
			"theoretical_cash": shift.TheoreticalCash(details),
			"card_sales":       details.TotalCardSales,
			"movements":        len(details.Movements),
		})

	case "open":
		cash := fs.String("cash", "0", "initial cash in the drawer")
		if err := fs.Parse(args[1:]); err != nil {
			return err
		}
		amount, err := parseAmount("cash", *cash)
		if err != nil {
			return err
		}
		opened, err := tracker.Open(ctx, amount, userID)
		if err != nil {
			return err
		}
		return printJSON(out, opened)

	case "movement":
		kind := fs.String("type", "", "IN or OUT")
		amountFlag := fs.String("amount", "", "movement amount")
		concept := fs.String("concept", "", "movement concept")
		description := fs.String("description", "", "free text")
		if err := fs.Parse(args[1:]); err != nil {
			return err
		}
		amount, err := parseAmount("amount", *amountFlag)
		if err != nil {
			return err
		}
		movement, err := tracker.RegisterMovement(ctx, strings.ToUpper(strings.TrimSpace(*kind)), amount, *concept, *description)
		if err != nil {
			return err
		}
		return printJSON(out, movement)

	case "close":
		cash := fs.String("cash", "", "cash counted in the drawer")
		card := fs.String("card", "0", "card terminal cut total")
		notes := fs.String("notes", "", "explanation of any difference")
		confirm := fs.Bool("confirm", false, "the card terminal cut was printed and checked")
		if err := fs.Parse(args[1:]); err != nil {
			return err
		}
		finalCash, err := parseAmount("cash", *cash)
		if err != nil {
			return err
		}
		cardTotal, err := parseAmount("card", *card)
		if err != nil {
			return err
		}
		closed, rec, err := tracker.Close(ctx, shift.CloseInput{
			FinalCash:         finalCash,
			CardTerminalTotal: cardTotal,
			Notes:             *notes,
			UserID:            userID,
			TerminalConfirmed: *confirm,
		})
		if err != nil {
			if rec.NotesRequired {
				_ = printJSON(out, rec)
			}
			return err
		}
		return printJSON(out, map[string]any{"shift": closed, "reconciliation": rec})

	default:
		fmt.Fprint(out, usage)
		return fmt.Errorf("unknown command %q", args[0])
	}
}

func parseAmount(name, raw string) (decimal.Decimal, error) {
	amount, err := decimal.NewFromString(raw)
	if err != nil {
		return decimal.Zero, apperr.Validationf("-%s must be a number, got %q", name, raw)
	}
	return amount, nil
}

func printJSON(out io.Writer, v any) error {
	enc := json.NewEncoder(out)
	enc.SetIndent("", "  ")
	return enc.Encode(v)
}

func describe(err error) string {
	appErr, ok := apperr.As(err)
	if !ok {
		return err.Error()
	}
	if appErr.Code != "" {
		return fmt.Sprintf("%s: %s (%s)", appErr.Kind, appErr.Message, appErr.Code)
	}
	return fmt.Sprintf("%s: %s", appErr.Kind, appErr.Message)
}
