// Package milteradapter wires the policy layer into a Sendmail/Postfix
// milter using github.com/emersion/go-milter, replacing the C daemon's
// hand-rolled milter.c protocol implementation with a real library.
package milteradapter

import (
	"context"
	"fmt"
	"net"
	"net/textproto"
	"strings"

	"github.com/emersion/go-milter"
	"github.com/sirupsen/logrus"

	"github.com/postsrsd/postsrsd-go/internal/endpoint"
	"github.com/postsrsd/postsrsd-go/internal/policy"
)

// Capabilities declares the milter actions this filter performs:
// rewriting the envelope sender and adding/removing recipients.
const Capabilities = milter.OptAddRcpt | milter.OptRemoveRcpt | milter.OptChangeFrom

// Adapter adapts a *policy.Policy into a github.com/emersion/go-milter
// session factory.
type Adapter struct {
	Policy *policy.Policy
	Home   string // srs_home: the domain this daemon rewrites addresses under

	// ExcludeDomains is a suffix-matched exclusion list independent of
	// Policy.Domains: addresses in these domains are never rewritten.
	// Carried over from milter.c's own "excludes" parameter.
	ExcludeDomains []string

	Log *logrus.Logger
}

// NewMilter returns a session factory suitable for milter.NewServer's
// WithMilter option: one *session is created per SMTP connection.
func (a *Adapter) NewMilter() milter.Milter {
	log := a.Log
	if log == nil {
		log = logrus.StandardLogger()
	}
	return &session{adapter: a, log: log}
}

// Serve runs a milter.Server over every listener until ctx is
// canceled, closing the server when it is.
func (a *Adapter) Serve(ctx context.Context, listeners []*endpoint.Listener) error {
	srv := milter.NewServer(
		milter.WithMilter(func() milter.Milter { return a.NewMilter() }),
		milter.WithActions(Capabilities),
	)

	errCh := make(chan error, len(listeners))
	for _, l := range listeners {
		l := l
		go func() { errCh <- srv.Serve(l) }()
	}

	go func() {
		<-ctx.Done()
		srv.Close()
	}()

	var firstErr error
	for range listeners {
		if err := <-errCh; err != nil && ctx.Err() == nil && firstErr == nil {
			firstErr = err
		}
	}
	return firstErr
}

// session holds per-connection state: the candidate envelope sender and
// the ordered list of recipients, mirroring milter.c's mlfiPriv.
type session struct {
	adapter *Adapter
	log     *logrus.Logger

	envFrom string
	envRcpt []string
}

func (s *session) Connect(host string, family string, port uint16, addr net.IP, m *milter.Modifier) (*milter.Response, error) {
	return milter.RespContinue, nil
}

func (s *session) Helo(name string, m *milter.Modifier) (*milter.Response, error) {
	return milter.RespContinue, nil
}

func (s *session) MailFrom(from string, esmtpArgs []string, m *milter.Modifier) (*milter.Response, error) {
	s.envFrom = stripAngleBrackets(from)
	return milter.RespContinue, nil
}

func (s *session) RcptTo(rcptTo string, esmtpArgs []string, m *milter.Modifier) (*milter.Response, error) {
	s.envRcpt = append(s.envRcpt, stripAngleBrackets(rcptTo))
	return milter.RespContinue, nil
}

func (s *session) Header(name, value string, m *milter.Modifier) (*milter.Response, error) {
	return milter.RespContinue, nil
}

func (s *session) Headers(h textproto.MIMEHeader, m *milter.Modifier) (*milter.Response, error) {
	return milter.RespContinue, nil
}

func (s *session) BodyChunk(chunk []byte, m *milter.Modifier) (*milter.Response, error) {
	return milter.RespContinue, nil
}

func (s *session) Body(m *milter.Modifier) (*milter.Response, error) {
	ctx := context.Background()

	for _, rcpt := range s.envRcpt {
		rewritten, err := s.reverseRecipient(ctx, rcpt)
		if err != nil {
			s.log.WithError(err).WithField("rcpt", rcpt).Warn("rcpt reverse failed")
			return milter.RespTempFail, nil
		}
		if rewritten != "" && rewritten != rcpt {
			if err := m.DeleteRecipient(angleBrackets(rcpt)); err != nil {
				return milter.RespTempFail, err
			}
			if err := m.AddRecipient(angleBrackets(rewritten), ""); err != nil {
				return milter.RespTempFail, err
			}
			s.log.WithFields(logrus.Fields{"from": rcpt, "to": rewritten}).Info("rcpt rewritten")
		}
	}

	if s.envFrom != "" {
		rewritten, err := s.forwardSender(ctx, s.envFrom)
		if err != nil {
			s.log.WithError(err).WithField("sender", s.envFrom).Warn("sender forward failed")
			return milter.RespTempFail, nil
		}
		if rewritten != "" && rewritten != s.envFrom {
			if err := m.ChangeFrom(angleBrackets(rewritten), ""); err != nil {
				return milter.RespTempFail, err
			}
			s.log.WithFields(logrus.Fields{"from": s.envFrom, "to": rewritten}).Info("sender rewritten")
		}
	}

	return milter.RespAccept, nil
}

// reverseRecipient implements postsrsd_reverse for a single recipient.
// A recipient that needs no reversal (an error in policy.ClassNotFound,
// such as a plain non-SRS address) yields "" and no error.
func (s *session) reverseRecipient(ctx context.Context, rcpt string) (string, error) {
	rewritten, err := s.adapter.Policy.Reverse(ctx, rcpt)
	if err != nil && policy.Classify(err) == policy.ClassNotFound {
		return "", nil
	}
	return rewritten, err
}

// forwardSender implements the exclusion-list and "already valid SRS"
// short-circuits from milter.c's milter_forward, then falls through to
// the normal forward policy.
func (s *session) forwardSender(ctx context.Context, sender string) (string, error) {
	at := strings.IndexByte(sender, '@')
	if at >= 0 {
		domain := sender[at+1:]
		for _, excluded := range s.adapter.ExcludeDomains {
			if hasDomainSuffix(domain, excluded) {
				s.log.WithField("sender", sender).Info("not rewritten: Domain excluded by policy")
				return "", nil
			}
		}
	}

	if original, err := s.adapter.Policy.Reverse(ctx, sender); err == nil {
		s.log.WithField("sender", original).Info("not rewritten: Valid SRS address")
		return "", nil
	}

	result, info, err := s.adapter.Policy.Forward(ctx, sender, s.adapter.Home)
	if err != nil {
		return "", err
	}
	if result == "" {
		s.log.WithFields(logrus.Fields{"sender": sender, "info": info}).Info("not rewritten")
		return "", nil
	}
	return result, nil
}

func (s *session) Abort(m *milter.Modifier) error {
	s.envFrom = ""
	s.envRcpt = nil
	return nil
}

func (s *session) Close() error {
	return nil
}

func stripAngleBrackets(addr string) string {
	addr = strings.TrimPrefix(addr, "<")
	addr = strings.TrimSuffix(addr, ">")
	return addr
}

func angleBrackets(addr string) string {
	return fmt.Sprintf("<%s>", addr)
}

// hasDomainSuffix reports whether domain equals excluded or is a
// subdomain of it, case-insensitively.
func hasDomainSuffix(domain, excluded string) bool {
	domain = strings.ToLower(domain)
	excluded = strings.ToLower(excluded)
	if domain == excluded {
		return true
	}
	return strings.HasSuffix(domain, "."+excluded)
}
