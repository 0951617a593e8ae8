package socketmap

import (
	"bufio"
	"context"
	"net"
	"strings"
	"testing"
	"time"

	"github.com/postsrsd/postsrsd-go/internal/netstring"
)

func startTestServer(t *testing.T, handle Handler) (net.Listener, func()) {
	t.Helper()
	ln, err := net.Listen("tcp", "127.0.0.1:0")
	if err != nil {
		t.Fatalf("listen: %v", err)
	}
	srv := &Server{Handle: handle, KeepAlive: 200 * time.Millisecond}
	go srv.Serve(context.Background(), ln)
	return ln, func() { ln.Close() }
}

func request(t *testing.T, addr, body string) string {
	t.Helper()
	conn, err := net.Dial("tcp", addr)
	if err != nil {
		t.Fatalf("dial: %v", err)
	}
	defer conn.Close()
	if err := netstring.Write(conn, []byte(body)); err != nil {
		t.Fatalf("write request: %v", err)
	}
	reply, err := netstring.Read(bufio.NewReader(conn))
	if err != nil {
		t.Fatalf("read reply: %v", err)
	}
	return string(reply)
}

func TestServer_ForwardOK(t *testing.T) {
	ln, stop := startTestServer(t, func(ctx context.Context, queryType, addr string) Reply {
		if queryType == "forward" && addr == "test@otherdomain.com" {
			return Reply{Status: StatusOK, Body: "SRS0=vmyz=2W=otherdomain.com=test@example.com"}
		}
		return Reply{Status: StatusPerm, Body: "unexpected"}
	})
	defer stop()

	got := request(t, ln.Addr().String(), "forward map test@otherdomain.com")
	want := "OK SRS0=vmyz=2W=otherdomain.com=test@example.com"
	if got != want {
		t.Errorf("got %q, want %q", got, want)
	}
}

func TestServer_UnknownQueryType(t *testing.T) {
	ln, stop := startTestServer(t, func(ctx context.Context, queryType, addr string) Reply {
		return Reply{Status: StatusOK}
	})
	defer stop()

	got := request(t, ln.Addr().String(), "bogus map something")
	if got != "PERM Invalid map." {
		t.Errorf("got %q, want PERM Invalid map.", got)
	}
}

func TestServer_MalformedRequest(t *testing.T) {
	ln, stop := startTestServer(t, func(ctx context.Context, queryType, addr string) Reply {
		return Reply{Status: StatusOK}
	})
	defer stop()

	got := request(t, ln.Addr().String(), "onlyoneword")
	if got != "PERM Invalid query." {
		t.Errorf("got %q, want PERM Invalid query.", got)
	}
}

func TestServer_TooBig(t *testing.T) {
	ln, stop := startTestServer(t, func(ctx context.Context, queryType, addr string) Reply {
		return Reply{Status: StatusOK, Body: "fine"}
	})
	defer stop()

	big := strings.Repeat("x", maxRequestBody+1)
	got := request(t, ln.Addr().String(), "forward map "+big)
	if got != "PERM Too big." {
		t.Errorf("got %q, want PERM Too big.", got)
	}
}

func TestServer_NotFoundAndTemp(t *testing.T) {
	ln, stop := startTestServer(t, func(ctx context.Context, queryType, addr string) Reply {
		if addr == "local@example.com" {
			return Reply{Status: StatusNotFound, Body: "Need not rewrite local domain."}
		}
		return Reply{Status: StatusTemp, Body: "alias store unavailable"}
	})
	defer stop()

	got := request(t, ln.Addr().String(), "forward map local@example.com")
	if got != "NOTFOUND Need not rewrite local domain." {
		t.Errorf("got %q", got)
	}
	got = request(t, ln.Addr().String(), "forward map anything@else.com")
	if got != "TEMP alias store unavailable" {
		t.Errorf("got %q", got)
	}
}
