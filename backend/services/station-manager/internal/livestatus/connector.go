package livestatus

import (
	"context"
	"errors"
	"fmt"
	"regexp"
	"strconv"

	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"
)

const (
	// DefaultServiceDescription is the service that reports the foreground application.
	DefaultServiceDescription = "dockapp_top1"

	// NoRunningAppOutput is the plugin output reported when no application is running.
	NoRunningAppOutput = "CRIT - CRITICAL - no running TOP app!"
)

// ErrAppIDParse is returned when the plugin output does not encode an application id.
var ErrAppIDParse = errors.New("livestatus: cannot parse app id")

var appIDPattern = regexp.MustCompile(`^[^:]+:\s*(.*)@\[.*\]$`)

// Row is the merged host and application state of one station.
type Row struct {
	ID           string `json:"id"`
	State        int    `json:"state"`
	StateType    int    `json:"state_type"`
	HasApp       bool   `json:"has_app"`
	AppState     int    `json:"app_state,omitempty"`
	AppStateType int    `json:"app_state_type,omitempty"`
	AppID        string `json:"app_id,omitempty"`
}

// Connector queries MK Livestatus and joins host and service state per station.
type Connector struct {
	transport          Transport
	parser             Parser
	serviceDescription string
	logger             *zap.Logger
}

// NewConnector builds a Connector. A nil parser uses the default separator parser.
func NewConnector(transport Transport, parser Parser, serviceDescription string, logger *zap.Logger) *Connector {
	if parser == nil {
		parser = NewSeparatorParser(DefaultFieldSeparator)
	}
	if serviceDescription == "" {
		serviceDescription = DefaultServiceDescription
	}
	return &Connector{
		transport:          transport,
		parser:             parser,
		serviceDescription: serviceDescription,
		logger:             logger,
	}
}

// HostQuery returns the hosts query.
func HostQuery() *Query {
	return Get("hosts").
		Columns("name", "state", "state_type").
		As("id", "state", "state_type")
}

// AppQuery returns the foreground application query for the given service.
func AppQuery(serviceDescription string) *Query {
	return Get("services").
		Columns("host_name", "state", "state_type", "plugin_output").
		As("id", "app_state", "app_state_type", "app_id").
		Filter("description = " + serviceDescription)
}

// State returns one row per host known to Livestatus, in host query order. Any transport
// or parse failure fails the whole call.
func (c *Connector) State(ctx context.Context) ([]Row, error) {
	var hosts, apps []Record

	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		var err error
		hosts, err = c.execute(gctx, HostQuery())
		return err
	})
	g.Go(func() error {
		var err error
		apps, err = c.execute(gctx, AppQuery(c.serviceDescription))
		return err
	})
	if err := g.Wait(); err != nil {
		c.logger.Debug("livestatus query failed", zap.Error(err))
		return nil, err
	}

	return Join(hosts, apps)
}

// Join seeds rows from host records and adds application fields from service records.
// Records without an id, and service records for unknown hosts, are ignored once their
// application text has been validated: unrecognised text on any service row fails the join.
func Join(hosts, apps []Record) ([]Row, error) {
	order := make([]string, 0, len(hosts))
	byID := make(map[string]*Row, len(hosts))

	for _, rec := range hosts {
		id := rec["id"]
		if id == "" {
			continue
		}
		state, err := atoi(rec, "state")
		if err != nil {
			return nil, err
		}
		stateType, err := atoi(rec, "state_type")
		if err != nil {
			return nil, err
		}
		if _, seen := byID[id]; !seen {
			order = append(order, id)
		}
		byID[id] = &Row{ID: id, State: state, StateType: stateType}
	}

	for _, rec := range apps {
		id := rec["id"]
		appID, err := ExtractAppID(rec["app_id"])
		if err != nil {
			return nil, fmt.Errorf("%w of station %s: %q", err, id, rec["app_id"])
		}
		row, ok := byID[id]
		if id == "" || !ok {
			continue
		}
		appState, err := atoi(rec, "app_state")
		if err != nil {
			return nil, err
		}
		appStateType, err := atoi(rec, "app_state_type")
		if err != nil {
			return nil, err
		}
		row.HasApp = true
		row.AppState = appState
		row.AppStateType = appStateType
		row.AppID = appID
	}

	rows := make([]Row, 0, len(order))
	for _, id := range order {
		rows = append(rows, *byID[id])
	}
	return rows, nil
}

// ExtractAppID pulls the application name out of plugin output shaped like
// "<prefix>: <app>@[<details>]".
func ExtractAppID(output string) (string, error) {
	if m := appIDPattern.FindStringSubmatch(output); m != nil {
		return m[1], nil
	}
	if output == NoRunningAppOutput {
		return "", nil
	}
	return "", ErrAppIDParse
}

func (c *Connector) execute(ctx context.Context, q *Query) ([]Record, error) {
	raw, err := c.transport.RoundTrip(ctx, q.String())
	if err != nil {
		return nil, err
	}
	records, err := c.parser.Parse(raw, q.OutputColumns())
	if err != nil {
		return nil, fmt.Errorf("livestatus: parse %s response: %w", q.Table(), err)
	}
	return records, nil
}

// atoi reads a numeric field; an absent field reads as zero.
func atoi(rec Record, key string) (int, error) {
	raw, ok := rec[key]
	if !ok {
		return 0, nil
	}
	v, err := strconv.Atoi(raw)
	if err != nil {
		return 0, fmt.Errorf("livestatus: field %s of %s: %w", key, rec["id"], err)
	}
	return v, nil
}
