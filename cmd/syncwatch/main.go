package main

import (
	"context"
	"flag"
	"fmt"
	"os"
	"os/signal"
	"path/filepath"
	"strings"
	"syscall"
	"time"

	"github.com/lorekeep/lorekeep/client"
	"github.com/lorekeep/lorekeep/pkg/logger"
)

// syncwatch logs in to a Lorekeep server, starts or attaches to a sync job,
// and follows its progress stream until the job finishes.
func main() {
	server := flag.String("server", "http://localhost:5100", "Server base URL")
	email := flag.String("email", "", "Login email (omit to reuse a stored session)")
	password := flag.String("password", "", "Login password")
	syncID := flag.String("sync", "", "Existing sync id to watch")
	connector := flag.String("connector", "", "Connector type to start a new sync for (e.g. notion)")
	notify := flag.Bool("notify", false, "Request a completion email")
	flag.Parse()

	logger.Init(os.Getenv("LOG_LEVEL"))

	if env := os.Getenv("LOREKEEP_SERVER"); env != "" && *server == "http://localhost:5100" {
		*server = env
	}
	base := strings.TrimRight(*server, "/")

	if *syncID == "" && *connector == "" {
		fmt.Println("either -sync or -connector is required")
		os.Exit(1)
	}

	store := client.NewFileStore(sessionPath())
	api := client.NewAPI(base, nil)
	ctrl := client.NewSessionController(api, store)
	defer ctrl.Close()

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	if err := authenticate(ctx, ctrl, *email, *password); err != nil {
		fmt.Println("Error:", err)
		os.Exit(1)
	}
	user := ctrl.CurrentUser()
	logger.Infof("authenticated as %s", user.Email)

	id := *syncID
	if id == "" {
		started, err := api.StartSync(ctx, *connector, ctrl.CurrentToken())
		if err != nil {
			fmt.Println("Error starting sync:", err)
			os.Exit(1)
		}
		id = started
		logger.Infof("started %s sync %s", *connector, id)
	}

	if code := watch(ctx, api, id, ctrl.CurrentToken(), *notify); code != 0 {
		os.Exit(code)
	}
}

func authenticate(ctx context.Context, ctrl *client.SessionController, email, password string) error {
	if _, aerr := ctrl.Verify(ctx); aerr != nil {
		logger.Debugf("stored session rejected: %v", aerr)
	}
	if ctrl.State() == client.StateAuthenticated {
		return nil
	}
	if email == "" || password == "" {
		return fmt.Errorf("no stored session; -email and -password are required")
	}
	if _, aerr := ctrl.Login(ctx, email, password); aerr != nil {
		return fmt.Errorf("login failed: %v", aerr)
	}
	return nil
}

// watch follows the stream until it closes, printing each snapshot. Returns
// the process exit code.
func watch(ctx context.Context, api *client.API, syncID, token string, notify bool) int {
	stream := client.NewProgressStream(api, syncID, token)
	defer stream.Close()
	if notify {
		stream.NotifyOnComplete()
	}

	exitCode := 0
	for {
		select {
		case <-ctx.Done():
			logger.Info("interrupted, closing stream")
			return 130
		case st := <-stream.Updates():
			printSnapshot(&st, stream.EstimatedTimeRemaining())
		case serr := <-stream.Errors():
			switch serr.Kind {
			case client.JobFailed:
				logger.Errorf("sync failed: %s", serr.Message)
				exitCode = 1
				stream.Close()
			default:
				logger.Errorf("%v", serr)
				return 1
			}
		case <-stream.Done():
			// drain any snapshot that raced the close
			if st := stream.State(); st != nil {
				printSnapshot(st, "")
			}
			return exitCode
		}
	}
}

func printSnapshot(st *client.ProgressState, estimate string) {
	line := fmt.Sprintf("[%s] %s", st.Status, st.Stage)
	if st.TotalItems > 0 {
		line += fmt.Sprintf(" (%d/%d", st.ProcessedItems, st.TotalItems)
		if st.FailedItems > 0 {
			line += fmt.Sprintf(", %d failed", st.FailedItems)
		}
		line += ")"
	}
	if st.CurrentItem != "" {
		line += " " + st.CurrentItem
	}
	if estimate != "" {
		line += ", " + estimate
	}
	fmt.Println(time.Now().Format("15:04:05"), line)
}

func sessionPath() string {
	dir, err := os.UserConfigDir()
	if err != nil {
		dir = "."
	}
	return filepath.Join(dir, "lorekeep", "session.json")
}
