// Package socketmap implements the Postfix socketmap protocol: each
// connection is an unbounded stream of netstring-framed
// "<query-type> <map-name> <address>" requests, each answered by
// exactly one netstring-framed "OK"/"NOTFOUND"/"PERM"/"TEMP" response.
package socketmap

import (
	"bufio"
	"context"
	"errors"
	"net"
	"strings"
	"time"

	"github.com/sirupsen/logrus"

	"github.com/postsrsd/postsrsd-go/internal/logging"
	"github.com/postsrsd/postsrsd-go/internal/netstring"
)

// maxRequestBody is the cap on a request's length after the query-type
// word, per spec.
const maxRequestBody = 512

// defaultKeepAlive is how long a connection may sit idle between
// requests before the server closes it.
const defaultKeepAlive = 30 * time.Second

// Handler answers one socketmap lookup. queryType is "forward" or
// "reverse"; addr is the looked-up address (the map name, if present
// in the request, is not consulted by the core per spec). It returns
// the reply body that follows "OK "/"NOTFOUND "/"PERM "/"TEMP " on the
// wire, and the reply kind.
type Handler func(ctx context.Context, queryType, addr string) Reply

// Reply is the outcome of a single lookup.
type Reply struct {
	Status ReplyStatus
	Body   string
}

// ReplyStatus is one of the four socketmap reply kinds.
type ReplyStatus int

const (
	StatusOK ReplyStatus = iota
	StatusNotFound
	StatusPerm
	StatusTemp
)

func (s ReplyStatus) wire() string {
	switch s {
	case StatusOK:
		return "OK"
	case StatusNotFound:
		return "NOTFOUND"
	case StatusPerm:
		return "PERM"
	case StatusTemp:
		return "TEMP"
	default:
		return "TEMP"
	}
}

// Server accepts connections on one or more listeners and serves the
// socketmap protocol against Handle.
type Server struct {
	Handle     Handler
	KeepAlive  time.Duration
	Log        *logrus.Logger
}

// Serve accepts and handles connections on ln until it returns an
// error (typically because ln was closed during shutdown).
func (s *Server) Serve(ctx context.Context, ln net.Listener) error {
	for {
		conn, err := ln.Accept()
		if err != nil {
			return err
		}
		go s.serveConn(ctx, conn)
	}
}

func (s *Server) serveConn(ctx context.Context, conn net.Conn) {
	defer conn.Close()
	keepAlive := s.KeepAlive
	if keepAlive == 0 {
		keepAlive = defaultKeepAlive
	}
	log := s.Log
	if log == nil {
		log = logrus.StandardLogger()
	}

	reader := bufio.NewReader(conn)
	for {
		conn.SetReadDeadline(time.Now().Add(keepAlive))
		body, err := netstring.Read(reader)
		if err != nil {
			if !isTimeout(err) {
				s.reply(conn, log, StatusPerm, "Invalid query.")
			}
			return
		}

		queryType, mapName, addr, ok := parseRequest(string(body))
		if !ok {
			s.reply(conn, log, StatusPerm, "Invalid query.")
			return
		}
		if len(body)-len(queryType)-1 > maxRequestBody {
			s.reply(conn, log, StatusPerm, "Too big.")
			continue
		}
		if queryType != "forward" && queryType != "reverse" {
			log.WithField("query", queryType).Info("unknown map queried")
			s.reply(conn, log, StatusPerm, "Invalid map.")
			return
		}

		reply := s.Handle(ctx, queryType, addr)
		entry := logging.ForLookup(log, queryType, addr).WithFields(logrus.Fields{
			"map":    mapName,
			"status": reply.Status.wire(),
		})
		if reply.Status == StatusOK {
			entry = entry.WithField("rewritten", reply.Body)
		} else {
			entry = entry.WithField("reason", reply.Body)
		}
		entry.Info("lookup")
		if !s.reply(conn, log, reply.Status, reply.Body) {
			return
		}
	}
}

// isTimeout lets serveConn special-case deadline-exceeded errors, which
// close the connection silently (a keep-alive expiry, not a protocol
// violation) rather than replying "Invalid query.".
func isTimeout(err error) bool {
	var netErr net.Error
	return errors.As(err, &netErr) && netErr.Timeout()
}

func (s *Server) reply(conn net.Conn, log *logrus.Logger, status ReplyStatus, body string) bool {
	line := status.wire()
	if body != "" {
		line += " " + body
	}
	if err := netstring.Write(conn, []byte(line)); err != nil {
		log.WithError(err).Warn("failed to write socketmap reply")
		return false
	}
	return true
}

// parseRequest splits "<query-type> <map-name> <address>" on the
// first two spaces. Per spec, the core only consults query-type and
// address; map-name is returned for logging.
func parseRequest(body string) (queryType, mapName, addr string, ok bool) {
	i := strings.IndexByte(body, ' ')
	if i < 0 {
		return "", "", "", false
	}
	queryType = body[:i]
	rest := body[i+1:]
	j := strings.IndexByte(rest, ' ')
	if j < 0 {
		return "", "", "", false
	}
	return queryType, rest[:j], rest[j+1:], true
}
