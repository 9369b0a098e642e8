package livestatus

import (
	"context"
	"errors"
	"strings"
	"sync"
	"testing"

	"go.uber.org/zap"
)

type fakeTransport struct {
	mu        sync.Mutex
	responses map[string]string
	err       error
	queries   []string
}

func (f *fakeTransport) RoundTrip(ctx context.Context, query string) (string, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.queries = append(f.queries, query)
	if f.err != nil {
		return "", f.err
	}
	table := strings.TrimPrefix(strings.SplitN(query, "\n", 2)[0], "GET ")
	return f.responses[table], nil
}

func TestJoinMergesAppFields(t *testing.T) {
	hosts := []Record{
		{"id": "a", "state": "0"},
		{"id": "b", "state": "1"},
	}
	apps := []Record{
		{"id": "a", "app_id": "Prefix: chrome@[x]"},
	}

	rows, err := Join(hosts, apps)
	if err != nil {
		t.Fatalf("Join: %v", err)
	}
	if len(rows) != 2 {
		t.Fatalf("expected 2 rows, got %d", len(rows))
	}

	if rows[0].ID != "a" || !rows[0].HasApp || rows[0].AppID != "chrome" {
		t.Errorf("unexpected row a: %+v", rows[0])
	}
	if rows[1].ID != "b" || rows[1].HasApp || rows[1].AppID != "" || rows[1].State != 1 {
		t.Errorf("unexpected row b: %+v", rows[1])
	}
}

func TestJoinIgnoresOrphansAndMissingIDs(t *testing.T) {
	hosts := []Record{{"id": "a", "state": "0"}, {"state": "2"}}
	apps := []Record{
		{"id": "ghost", "app_id": "Top: x@[y]"},
		{"app_id": "Top: x@[y]"},
	}

	rows, err := Join(hosts, apps)
	if err != nil {
		t.Fatalf("Join: %v", err)
	}
	if len(rows) != 1 || rows[0].ID != "a" || rows[0].HasApp {
		t.Errorf("unexpected rows %+v", rows)
	}
}

func TestJoinRejectsUnparsableAppForUnknownHost(t *testing.T) {
	hosts := []Record{{"id": "a", "state": "0"}}
	apps := []Record{{"id": "zzz", "app_id": "garbage"}}

	if _, err := Join(hosts, apps); !errors.Is(err, ErrAppIDParse) {
		t.Errorf("expected ErrAppIDParse, got %v", err)
	}
}

func TestExtractAppID(t *testing.T) {
	cases := []struct {
		in      string
		want    string
		wantErr bool
	}{
		{"OK - TOP: kiosk_browser@[pid 12]", "kiosk_browser", false},
		{"Prefix:chrome@[]", "chrome", false},
		{NoRunningAppOutput, "", false},
		{"something else entirely", "", true},
		{"", "", true},
	}

	for _, tc := range cases {
		got, err := ExtractAppID(tc.in)
		if tc.wantErr {
			if !errors.Is(err, ErrAppIDParse) {
				t.Errorf("ExtractAppID(%q): expected ErrAppIDParse, got %v", tc.in, err)
			}
			continue
		}
		if err != nil || got != tc.want {
			t.Errorf("ExtractAppID(%q) = %q, %v; want %q", tc.in, got, err, tc.want)
		}
	}
}

func TestConnectorState(t *testing.T) {
	transport := &fakeTransport{responses: map[string]string{
		"hosts":    "station_a;0;1\nstation_b;2;1\n",
		"services": "station_a;0;1;OK - TOP: browser@[1]\nstation_b;2;1;" + NoRunningAppOutput + "\nother;0;1;OK - TOP: x@[1]\n",
	}}
	c := NewConnector(transport, nil, "", zap.NewNop())

	rows, err := c.State(context.Background())
	if err != nil {
		t.Fatalf("State: %v", err)
	}
	if len(rows) != 2 {
		t.Fatalf("expected 2 rows, got %d", len(rows))
	}
	if rows[0].AppID != "browser" || rows[0].AppStateType != StateTypeHard {
		t.Errorf("unexpected station_a row %+v", rows[0])
	}
	if rows[1].State != HostUnreachable || rows[1].AppID != "" || !rows[1].HasApp || rows[1].AppState != ServiceCritical {
		t.Errorf("unexpected station_b row %+v", rows[1])
	}

	if len(transport.queries) != 2 {
		t.Fatalf("expected 2 round trips, got %d", len(transport.queries))
	}
	for _, q := range transport.queries {
		if strings.HasPrefix(q, "GET services") && !strings.Contains(q, "Filter: description = dockapp_top1\n") {
			t.Errorf("services query missing filter: %q", q)
		}
	}
}

func TestConnectorStateFailures(t *testing.T) {
	t.Run("transport", func(t *testing.T) {
		c := NewConnector(&fakeTransport{err: errors.New("connection refused")}, nil, "", zap.NewNop())
		if _, err := c.State(context.Background()); err == nil {
			t.Error("expected transport error")
		}
	})

	t.Run("unparseable app", func(t *testing.T) {
		transport := &fakeTransport{responses: map[string]string{
			"hosts":    "station_a;0;1\n",
			"services": "station_a;0;1;garbage\n",
		}}
		c := NewConnector(transport, nil, "", zap.NewNop())
		_, err := c.State(context.Background())
		if !errors.Is(err, ErrAppIDParse) {
			t.Errorf("expected ErrAppIDParse, got %v", err)
		}
	})

	t.Run("malformed row", func(t *testing.T) {
		transport := &fakeTransport{responses: map[string]string{
			"hosts":    "station_a;zero;1\n",
			"services": "",
		}}
		c := NewConnector(transport, nil, "", zap.NewNop())
		if _, err := c.State(context.Background()); err == nil {
			t.Error("expected error for non-numeric state")
		}
	})
}
