// Package mdns discovers Apple TV services over multicast or unicast
// DNS-SD (spec.md §4.H). Grounded on internal/ice/mdns/client.go's socket
// and dnsmessage handling, generalized from ephemeral ICE hostname
// resolution to PTR/SRV/TXT/A service enumeration across several
// registered service types.
package mdns

import (
	"context"
	"net"
	"strings"
	"time"

	"golang.org/x/net/dns/dnsmessage"

	"github.com/lanikai/atvkit/device"
	"github.com/lanikai/atvkit/internal/discovery"
	"github.com/lanikai/atvkit/internal/logging"
)

var log = logging.DefaultLogger.WithTag(logging.TagMDNS)

// Multicast DNS address, per RFC 6762. atvkit only needs IPv4 discovery in
// practice (every shipping Apple TV advertises over it); IPv6 is not
// scanned, and the unicast scanner also uses an IPv4 socket.
var mdnsGroupAddr4 = &net.UDPAddr{
	IP:   net.ParseIP("224.0.0.251"),
	Port: 5353,
}

// Registration is contributed by each protocol implementation: the DNS-SD
// service type to query, and the protocol kind that answers for it are
// recorded under (spec.md §4.H). The identifier key is then chosen per
// protocol kind by identifierFromTXT.
type Registration struct {
	ServiceType string
	Protocol    device.ProtocolKind
}

// instance accumulates the pieces of one DNS-SD answer as they arrive,
// since PTR, SRV, TXT, and A records for a single advertised instance may
// appear in any order within (or across) responses.
type instance struct {
	serviceType string
	name        string // PTR target / SRV owner name
	host        string
	port        uint16
	txt         map[string]string
}

func (i *instance) ready() bool {
	return i.host != "" && i.port != 0
}

// Discover runs a multicast scan for timeout, querying one PTR record per
// registration, and returns device configs aggregated via
// internal/discovery.Merge (spec.md §4.H/§4.I).
func Discover(ctx context.Context, timeout time.Duration, registrations []Registration) (map[string]*device.DeviceConfig, error) {
	conn, err := net.ListenMulticastUDP("udp4", nil, mdnsGroupAddr4)
	if err != nil {
		return nil, err
	}
	defer conn.Close()

	ctx, cancel := context.WithTimeout(ctx, timeout)
	defer cancel()

	instances := make(map[string]*instance) // keyed by "serviceType|name"

	done := make(chan struct{})
	go func() {
		defer close(done)
		readAnswers(conn, ctx, instances)
	}()

	for _, reg := range registrations {
		if err := sendQuery(conn, reg.ServiceType); err != nil {
			log.Warn("mdns: query for %s failed: %v", reg.ServiceType, err)
		}
	}

	<-ctx.Done()
	conn.SetReadDeadline(time.Now()) // unblock readAnswers
	<-done

	records := recordsFromInstances(instances, registrations)
	return discovery.Merge(records), nil
}

func sendQuery(conn *net.UDPConn, serviceType string) error {
	name, err := dnsmessage.NewName(serviceType + ".")
	if err != nil {
		return err
	}
	b := dnsmessage.NewBuilder(nil, dnsmessage.Header{ID: 0})
	b.EnableCompression()
	if err := b.StartQuestions(); err != nil {
		return err
	}
	if err := b.Question(dnsmessage.Question{
		Name:  name,
		Type:  dnsmessage.TypePTR,
		Class: dnsmessage.ClassINET,
	}); err != nil {
		return err
	}
	msg, err := b.Finish()
	if err != nil {
		return err
	}
	_, err = conn.WriteTo(msg, mdnsGroupAddr4)
	return err
}

func readAnswers(conn *net.UDPConn, ctx context.Context, instances map[string]*instance) {
	buf := make([]byte, 9000)
	for {
		select {
		case <-ctx.Done():
			return
		default:
		}

		n, _, err := conn.ReadFromUDP(buf)
		if err != nil {
			return
		}
		if n == 0 {
			continue
		}
		handleMessage(buf[:n], instances)
	}
}

func handleMessage(msg []byte, instances map[string]*instance) {
	var p dnsmessage.Parser
	if _, err := p.Start(msg); err != nil {
		log.Debug("mdns: invalid message: %v", err)
		return
	}
	if err := p.SkipAllQuestions(); err != nil {
		return
	}

	for {
		hdr, err := p.AnswerHeader()
		if err == dnsmessage.ErrSectionDone {
			break
		}
		if err != nil {
			break
		}
		handleRecord(&p, hdr, instances)
	}
}

func handleRecord(p *dnsmessage.Parser, hdr dnsmessage.ResourceHeader, instances map[string]*instance) {
	switch hdr.Type {
	case dnsmessage.TypePTR:
		res, err := p.PTRResource()
		if err != nil {
			return
		}
		serviceType := strings.TrimSuffix(hdr.Name.String(), ".")
		name := strings.TrimSuffix(res.PTR.String(), ".")
		key := serviceType + "|" + name
		if _, ok := instances[key]; !ok {
			instances[key] = &instance{serviceType: serviceType, name: name, txt: map[string]string{}}
		}
	case dnsmessage.TypeSRV:
		res, err := p.SRVResource()
		if err != nil {
			return
		}
		owner := strings.TrimSuffix(hdr.Name.String(), ".")
		target := strings.TrimSuffix(res.Target.String(), ".")
		for _, inst := range instances {
			if inst.name == owner {
				inst.port = res.Port
				if inst.host == "" {
					inst.host = target
				}
			}
		}
	case dnsmessage.TypeTXT:
		res, err := p.TXTResource()
		if err != nil {
			return
		}
		owner := strings.TrimSuffix(hdr.Name.String(), ".")
		for _, inst := range instances {
			if inst.name == owner {
				for k, v := range parseTXT(res.TXT) {
					inst.txt[k] = v
				}
			}
		}
	case dnsmessage.TypeA:
		res, err := p.AResource()
		if err != nil {
			return
		}
		owner := strings.TrimSuffix(hdr.Name.String(), ".")
		ip := net.IP(res.A[:]).String()
		for _, inst := range instances {
			if inst.host == owner {
				inst.host = ip
			}
		}
	default:
		if err := p.SkipAnswer(); err != nil {
			return
		}
	}
}

// parseTXT splits "key=value" TXT strings into a map, per DNS-SD §6.
func parseTXT(strs []string) map[string]string {
	out := make(map[string]string, len(strs))
	for _, s := range strs {
		if i := strings.IndexByte(s, '='); i >= 0 {
			out[strings.ToLower(s[:i])] = s[i+1:]
		} else if s != "" {
			out[strings.ToLower(s)] = ""
		}
	}
	return out
}

func recordsFromInstances(instances map[string]*instance, registrations []Registration) []device.ServiceRecord {
	protoByType := make(map[string]device.ProtocolKind, len(registrations))
	for _, reg := range registrations {
		protoByType[reg.ServiceType] = reg.Protocol
	}

	var out []device.ServiceRecord
	for _, inst := range instances {
		if !inst.ready() {
			continue
		}
		protocol, ok := protoByType[inst.serviceType]
		if !ok {
			continue
		}
		properties := make(map[string]string, len(inst.txt))
		for k, v := range inst.txt {
			properties[strings.ToLower(k)] = v
		}
		out = append(out, device.ServiceRecord{
			Protocol:   protocol,
			Host:       inst.host,
			Port:       inst.port,
			Identifier: identifierFromTXT(protocol, inst.txt, inst.name),
			Properties: properties,
			Raw:        inst.txt,
		})
	}
	return out
}

// identifierFromTXT extracts the per-protocol stable identifier key from a
// TXT record (spec.md §3); each Apple service uses a different key name for
// what is conceptually the same thing.
func identifierFromTXT(protocol device.ProtocolKind, txt map[string]string, instanceName string) string {
	keys := map[device.ProtocolKind][]string{
		device.MRP:       {"systemBuildVersion", "deviceid"},
		device.Companion: {"rpha", "deviceid"},
		device.DMAP:      {"deviceid", "atv_id"},
		device.AirPlay:   {"deviceid", "id"},
		device.RAOP:      {"deviceid"},
	}
	for _, k := range keys[protocol] {
		if v, ok := txt[k]; ok && v != "" {
			return v
		}
	}
	return instanceName
}
