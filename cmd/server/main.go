package main

import (
	"errors"
	"fmt"
	"net"
	"os"
	"os/signal"
	"strconv"
	"syscall"
	"time"

	"github.com/Wa4h1h/go-tftpd/pkg/server"
	"github.com/Wa4h1h/go-tftpd/pkg/storage"
	"github.com/Wa4h1h/go-tftpd/pkg/utils"
	"github.com/akamensky/argparse"
	"go.uber.org/zap"
)

var (
	tftpRoot    = utils.GetEnv[string]("TFTP_ROOT", "", false)
	tftpIP      = utils.GetEnv[string]("TFTP_IP", "0.0.0.0", false)
	tftpPort    = utils.GetEnv[int]("TFTP_PORT", "69", false)
	numRetries  = utils.GetEnv[int]("TFTP_RETRIES", strconv.Itoa(server.DefaultRetries), false)
	readTimeout = utils.GetEnv[time.Duration]("TFTP_READ_TIMEOUT", server.DefaultReadTimeout.String(), false)
	logLevel    = utils.GetEnv[string]("LOG_LEVEL", "info", false)
	trace       = utils.GetEnv[bool]("TFTP_TRACE", "false", false)
)

func main() {
	args := argparse.NewParser("tftpd", "RFC 1350 TFTP server")

	root := args.String("r", "root", &argparse.Options{Help: "Directory files are served from and written to (default $HOME/tftp)",
		Default: tftpRoot})
	ip := args.String("i", "ip", &argparse.Options{Help: "Listen on address", Default: tftpIP})
	port := args.Int("p", "port", &argparse.Options{Help: "Listening port", Default: tftpPort})
	retry := args.Int("", "retry", &argparse.Options{Help: "Number of times to resend an unacknowledged packet before giving up",
		Default: numRetries})
	timeout := args.Int("", "read-timeout", &argparse.Options{Help: "Time in ms before a packet is considered lost, -1 waits forever",
		Default: int(readTimeout / time.Millisecond)})
	level := args.Selector("", "log-level", []string{"debug", "info", "warn", "error"},
		&argparse.Options{Help: "Log level", Default: logLevel})
	traceBlocks := args.Flag("", "trace", &argparse.Options{Help: "Log every block sent and received", Default: trace})

	if err := args.Parse(os.Args); err != nil {
		fmt.Print(args.Usage(err))
		os.Exit(1)
	}

	l := utils.NewLogger(*level).Sugar()

	defer func() {
		_ = l.Sync()
	}()

	if *root == "" {
		*root = utils.DefaultRootDir()
	} else if err := utils.EnsureDir(*root); err != nil {
		l.Fatal(err.Error())
	}

	cfg := server.DefaultConfig(*root)
	cfg.Trace = *traceBlocks
	cfg.Hooks = lifecycleHooks(l)

	addr := net.JoinHostPort(*ip, strconv.Itoa(*port))
	s := server.NewServer(l, addr, cfg)

	if err := s.SetRetries(*retry); err != nil {
		l.Fatal(err.Error())
	}

	d := time.Duration(*timeout) * time.Millisecond
	if *timeout < 0 {
		d = server.NoReadTimeout
	}

	if err := s.SetReadTimeout(d); err != nil {
		l.Fatal(err.Error())
	}

	go func() {
		if err := s.ListenAndServe(); err != nil {
			l.Fatal(err.Error())
		}
	}()

	l.Infof("listening on %s", addr)

	defer func() {
		if err := s.Close(); err != nil && !errors.Is(err, net.ErrClosed) {
			l.Error(err.Error())
		}

		l.Infof("closed connection on %s", addr)
	}()

	// listen shutdown signal
	signalChan := make(chan os.Signal, 1)
	signal.Notify(signalChan, os.Interrupt, syscall.SIGINT, syscall.SIGTERM)
	<-signalChan
}

func lifecycleHooks(l *zap.SugaredLogger) server.Hooks {
	event := func(msg string) server.HookFunc {
		return func(path string, _ storage.File) {
			l.Infow(msg, "path", path)
		}
	}

	return server.Hooks{
		ReadStarted:    event("started read request"),
		ReadCompleted:  event("completed read request"),
		WriteStarted:   event("started write request"),
		WriteCompleted: event("completed write request"),
	}
}
