// Package oracleplugin lets an operator run a custom holiday/solar
// date oracle as a separate process, using HashiCorp's go-plugin
// library over its net/rpc transport rather than gRPC, since net/rpc
// needs no protoc-generated stubs.
package oracleplugin

import (
	"net/rpc"

	"github.com/hashicorp/go-plugin"

	"github.com/gcssync/gcs/internal/core/civil"
	"github.com/gcssync/gcs/internal/core/model"
)

// Handshake verifies that host and plugin process agree on the wire
// contract.
var Handshake = plugin.HandshakeConfig{
	ProtocolVersion:  1,
	MagicCookieKey:   "GCS_ORACLE_PLUGIN",
	MagicCookieValue: "gcs-oracle-v1",
}

// PluginMap is the map of plugins dispensed over the RPC connection.
var PluginMap = map[string]plugin.Plugin{
	"oracle": &OraclePlugin{},
}

// Provider is the interface a date-oracle plugin implements, covering
// both HolidayResolver and SolarOracle in one RPC-friendly shape.
type Provider interface {
	ResolveHoliday(name string, year int) (civil.Date, error)
	ResolveSolar(date civil.Date, lat, lon float64, kind model.SolarKind, offsetMin int) (civil.Time, error)
}

// OraclePlugin is the go-plugin Plugin implementation for Provider,
// using the net/rpc transport. Impl is set on the plugin-process side
// only; the host side only ever calls Client.
type OraclePlugin struct {
	Impl Provider
}

// Server returns the plugin-side RPC server wrapping Impl.
func (p *OraclePlugin) Server(*plugin.MuxBroker) (interface{}, error) {
	return &rpcServer{impl: p.Impl}, nil
}

// Client returns the host-side RPC client for a connected plugin.
func (p *OraclePlugin) Client(_ *plugin.MuxBroker, c *rpc.Client) (interface{}, error) {
	return &rpcClient{client: c}, nil
}

type holidayArgs struct {
	Name string
	Year int
}

type holidayReply struct {
	Date civil.Date
}

type solarArgs struct {
	Date      civil.Date
	Lat       float64
	Lon       float64
	Kind      model.SolarKind
	OffsetMin int
}

type solarReply struct {
	Time civil.Time
}

// rpcServer exposes Provider over net/rpc: each method's signature
// must be func(args, reply *T) error, so the real work is a one-line
// delegation to Impl.
type rpcServer struct {
	impl Provider
}

func (s *rpcServer) ResolveHoliday(args *holidayArgs, reply *holidayReply) error {
	date, err := s.impl.ResolveHoliday(args.Name, args.Year)
	if err != nil {
		return err
	}
	reply.Date = date
	return nil
}

func (s *rpcServer) ResolveSolar(args *solarArgs, reply *solarReply) error {
	t, err := s.impl.ResolveSolar(args.Date, args.Lat, args.Lon, args.Kind, args.OffsetMin)
	if err != nil {
		return err
	}
	reply.Time = t
	return nil
}

// rpcClient implements Provider on the host side by calling across
// the net/rpc connection go-plugin set up.
type rpcClient struct {
	client *rpc.Client
}

func (c *rpcClient) ResolveHoliday(name string, year int) (civil.Date, error) {
	var reply holidayReply
	if err := c.client.Call("Plugin.ResolveHoliday", &holidayArgs{Name: name, Year: year}, &reply); err != nil {
		return civil.Date{}, err
	}
	return reply.Date, nil
}

func (c *rpcClient) ResolveSolar(date civil.Date, lat, lon float64, kind model.SolarKind, offsetMin int) (civil.Time, error) {
	var reply solarReply
	args := &solarArgs{Date: date, Lat: lat, Lon: lon, Kind: kind, OffsetMin: offsetMin}
	if err := c.client.Call("Plugin.ResolveSolar", args, &reply); err != nil {
		return civil.Time{}, err
	}
	return reply.Time, nil
}
