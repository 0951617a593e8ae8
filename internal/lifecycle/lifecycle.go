// Package lifecycle assembles every other package into the daemon's
// startup sequence, privilege drop, and graceful shutdown, mirroring
// the original daemon's main.c ordering with Go idioms substituted for
// its process-level mechanisms (goroutines instead of forked workers,
// context.Context deadlines instead of SIGALRM).
package lifecycle

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"os/user"
	"strconv"
	"syscall"
	"time"

	"github.com/sirupsen/logrus"
	"golang.org/x/sys/unix"

	"github.com/postsrsd/postsrsd-go/internal/aliasstore"
	"github.com/postsrsd/postsrsd-go/internal/config"
	"github.com/postsrsd/postsrsd-go/internal/domaintrie"
	"github.com/postsrsd/postsrsd-go/internal/endpoint"
	"github.com/postsrsd/postsrsd-go/internal/logging"
	"github.com/postsrsd/postsrsd-go/internal/milteradapter"
	"github.com/postsrsd/postsrsd-go/internal/policy"
	"github.com/postsrsd/postsrsd-go/internal/secrets"
	"github.com/postsrsd/postsrsd-go/internal/socketmap"
	"github.com/postsrsd/postsrsd-go/internal/srs"
)

// Daemon owns the whole assembled daemon: configuration, codec,
// listeners, and the running accept loops.
type Daemon struct {
	Config *config.Config
	Log    *logrus.Logger

	codec   *srs.Codec
	secrets [][]byte
	domains *domaintrie.Trie
	store   aliasstore.Store
	policy  *policy.Policy

	socketmapListeners []*endpoint.Listener
	milterListeners    []*endpoint.Listener
}

// New constructs a Daemon from a loaded, validated configuration. It
// performs steps 2-3 of the startup order (configuration is already
// parsed by the caller; this reads the secrets file), builds the codec
// and domain trie, and opens the alias store when one is configured.
func New(cfg *config.Config) (*Daemon, error) {
	log, err := logging.New(cfg.Syslog)
	if err != nil {
		return nil, fmt.Errorf("lifecycle: %w", err)
	}

	secretList, err := secrets.Load(cfg.SecretsFile)
	if err != nil {
		return nil, fmt.Errorf("lifecycle: %w", err)
	}

	codec := srs.New(secretList[0])
	for _, s := range secretList[1:] {
		codec.AddSecret(s)
	}
	codec.Separator = cfg.Separator[0]
	codec.HashLength = cfg.HashLength
	codec.HashMin = cfg.HashMinimum
	codec.AlwaysRewrite = cfg.AlwaysRewrite
	codec.MaxAge = config.DefaultMaxAge

	trie := domaintrie.New()
	if cfg.SRSDomain != "" {
		if !trie.Insert(cfg.SRSDomain) {
			return nil, fmt.Errorf("lifecycle: invalid srs-domain %q", cfg.SRSDomain)
		}
	}
	for _, dom := range cfg.Domains {
		if !trie.Insert(dom) {
			return nil, fmt.Errorf("lifecycle: invalid domain %q", dom)
		}
	}

	d := &Daemon{
		Config:  cfg,
		Log:     log,
		codec:   codec,
		secrets: secretList,
		domains: trie,
	}

	if cfg.OriginalEnvelope == "database" {
		store, err := aliasstore.Open(cfg.EnvelopeDatabase, true)
		if err != nil {
			return nil, fmt.Errorf("lifecycle: opening alias store: %w", err)
		}
		d.store = store
	}

	d.policy = &policy.Policy{
		Codec:   codec,
		Domains: trie,
		Store:   d.store,
		MaxAge:  codec.MaxAge,
	}

	return d, nil
}

// srsHome returns the domain new SRS addresses are minted under.
func (d *Daemon) srsHome() string {
	if d.Config.SRSDomain != "" {
		return d.Config.SRSDomain
	}
	if len(d.Config.Domains) > 0 {
		return d.Config.Domains[0]
	}
	return ""
}

// Run executes the remaining startup steps (daemonize, bind listeners,
// drop privileges, sweep alias-store expiry, write the PID file, enter
// the accept loops) and blocks until ctx is canceled, then shuts down
// gracefully.
func (d *Daemon) Run(ctx context.Context) error {
	// 9. Daemonize. Unlike the original double-fork, which happens late
	// (after binding and privilege drop), Go cannot safely fork(2) a
	// running process with live goroutines: daemonizing here means
	// re-executing the binary, so it happens before any listener is
	// bound, or the child would start with none of them. The re-exec
	// carries the same argv and environment, so the child repeats New
	// (reading the secrets file and, when configured, opening its own
	// alias store) before reaching this point.
	if d.Config.Daemonize {
		if err := daemonize(); err != nil {
			return fmt.Errorf("lifecycle: daemonizing: %w", err)
		}
	}

	// 4. Bind listening sockets (before privilege drop: may need a
	// privileged port).
	socketmapListeners, err := endpoint.Bind(d.Config.Socketmap)
	if err != nil {
		return fmt.Errorf("lifecycle: binding socketmap endpoint: %w", err)
	}
	d.socketmapListeners = socketmapListeners

	var milterListeners []*endpoint.Listener
	if d.Config.Milter != "" {
		milterListeners, err = endpoint.Bind(d.Config.Milter)
		if err != nil {
			d.closeListeners()
			return fmt.Errorf("lifecycle: binding milter endpoint: %w", err)
		}
		d.milterListeners = milterListeners
	}

	// 5-7. Resolve uid/gid, chroot, setgid+setuid.
	if err := dropPrivileges(d.Config.UnprivilegedUser, d.Config.ChrootDir); err != nil {
		d.closeListeners()
		return fmt.Errorf("lifecycle: %w", err)
	}

	// 8. Sweep alias-store expiry now that privileges are dropped.
	if d.store != nil {
		if err := d.store.Expire(ctx); err != nil {
			d.Log.WithError(err).Warn("alias store expiry sweep failed")
		}
	}

	// 10. Write the PID file.
	if d.Config.PidFile != "" {
		if err := writePidFile(d.Config.PidFile); err != nil {
			d.closeListeners()
			return fmt.Errorf("lifecycle: %w", err)
		}
		defer os.Remove(d.Config.PidFile)
	}

	// 11. Enter the accept loops.
	runCtx, cancel := context.WithCancel(ctx)
	defer cancel()

	errCh := make(chan error, 2)
	go func() {
		errCh <- d.serveSocketmaps(runCtx)
	}()
	if len(milterListeners) > 0 {
		go func() {
			errCh <- d.serveMilters(runCtx)
		}()
	}

	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, syscall.SIGTERM, syscall.SIGINT)
	defer signal.Stop(sigCh)

	select {
	case <-sigCh:
		d.Log.Info("received shutdown signal")
	case <-ctx.Done():
	case err := <-errCh:
		cancel()
		d.closeListeners()
		d.shutdown()
		return err
	}

	cancel()
	d.closeListeners()
	d.shutdown()
	return nil
}

func (d *Daemon) shutdown() {
	if len(d.secrets) > 0 {
		secrets.Zero(d.secrets)
	}
	if d.store != nil {
		d.store.Close()
	}
}

func (d *Daemon) closeListeners() {
	for _, l := range d.socketmapListeners {
		l.Close()
	}
	for _, l := range d.milterListeners {
		l.Close()
	}
}

func (d *Daemon) serveSocketmaps(ctx context.Context) error {
	srv := &socketmap.Server{
		Handle:    d.handleLookup,
		KeepAlive: time.Duration(d.Config.KeepAlive) * time.Second,
		Log:       d.Log,
	}
	errCh := make(chan error, len(d.socketmapListeners))
	for _, l := range d.socketmapListeners {
		l := l
		go func() { errCh <- srv.Serve(ctx, l) }()
	}
	for range d.socketmapListeners {
		if err := <-errCh; err != nil && ctx.Err() == nil {
			return err
		}
	}
	return nil
}

func (d *Daemon) serveMilters(ctx context.Context) error {
	adapter := &milteradapter.Adapter{
		Policy: d.policy,
		Home:   d.srsHome(),
		Log:    d.Log,
	}
	return adapter.Serve(ctx, d.milterListeners)
}

func (d *Daemon) handleLookup(ctx context.Context, queryType, addr string) socketmap.Reply {
	home := d.srsHome()
	switch queryType {
	case "forward":
		rewritten, info, err := d.policy.Forward(ctx, addr, home)
		if err != nil {
			class := policy.Classify(err)
			d.logOutcome(queryType, addr, class, err.Error())
			return socketmap.Reply{Status: classToStatus(class), Body: err.Error()}
		}
		if rewritten == "" {
			return socketmap.Reply{Status: socketmap.StatusNotFound, Body: info}
		}
		return socketmap.Reply{Status: socketmap.StatusOK, Body: rewritten}
	case "reverse":
		original, err := d.policy.Reverse(ctx, addr)
		if err != nil {
			class := policy.Classify(err)
			d.logOutcome(queryType, addr, class, err.Error())
			return socketmap.Reply{Status: classToStatus(class), Body: err.Error()}
		}
		return socketmap.Reply{Status: socketmap.StatusOK, Body: original}
	default:
		return socketmap.Reply{Status: socketmap.StatusPerm, Body: "Invalid map."}
	}
}

// logOutcome logs a failed lookup at the level spec.md §7 assigns its
// error class: INFO for a recoverable per-request error (malformed
// input, nothing to rewrite), WARN for a transient backend failure.
func (d *Daemon) logOutcome(queryType, addr string, class policy.ErrorClass, reason string) {
	entry := logging.ForLookup(d.Log, queryType, addr)
	if class == policy.ClassTemp {
		entry.WithField("reason", reason).Warn("lookup failed")
		return
	}
	entry.WithField("reason", reason).Info("lookup failed")
}

// classToStatus maps a policy.ErrorClass to the socketmap reply status
// it is answered with, per spec.md §7/§9's PERM/NOTFOUND/TEMP tagging.
func classToStatus(c policy.ErrorClass) socketmap.ReplyStatus {
	switch c {
	case policy.ClassNotFound:
		return socketmap.StatusNotFound
	case policy.ClassTemp:
		return socketmap.StatusTemp
	default:
		return socketmap.StatusPerm
	}
}

// dropPrivileges resolves the unprivileged user's uid/gid, chroots,
// then setgid+setuid, in that order — chroot must happen while still
// root, and setgid must precede setuid or the process cannot drop its
// group afterward.
func dropPrivileges(username, chrootDir string) error {
	var uid, gid int
	if username != "" {
		u, err := user.Lookup(username)
		if err != nil {
			return fmt.Errorf("no such user %q: %w", username, err)
		}
		uid, err = strconv.Atoi(u.Uid)
		if err != nil {
			return err
		}
		gid, err = strconv.Atoi(u.Gid)
		if err != nil {
			return err
		}
	}

	if chrootDir != "" {
		if err := unix.Chdir(chrootDir); err != nil {
			return fmt.Errorf("chdir %s: %w", chrootDir, err)
		}
		if err := unix.Chroot(chrootDir); err != nil {
			return fmt.Errorf("chroot %s: %w", chrootDir, err)
		}
	}

	if username != "" {
		if err := unix.Setgid(gid); err != nil {
			return fmt.Errorf("setgid: %w", err)
		}
		if err := unix.Setuid(uid); err != nil {
			return fmt.Errorf("setuid: %w", err)
		}
	}
	return nil
}

func writePidFile(path string) error {
	return os.WriteFile(path, []byte(strconv.Itoa(os.Getpid())), 0o644)
}
