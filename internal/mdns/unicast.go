package mdns

import (
	"context"
	"net"
	"time"

	"golang.org/x/net/dns/dnsmessage"

	"github.com/lanikai/atvkit/device"
	"github.com/lanikai/atvkit/internal/discovery"
)

// DiscoverUnicast sends directed DNS-SD queries to each of hosts (port 5353)
// instead of joining the multicast group, for networks where multicast is
// blocked (spec.md §4.H).
func DiscoverUnicast(ctx context.Context, timeout time.Duration, hosts []string, registrations []Registration) (map[string]*device.DeviceConfig, error) {
	conn, err := net.ListenUDP("udp4", nil)
	if err != nil {
		return nil, err
	}
	defer conn.Close()

	ctx, cancel := context.WithTimeout(ctx, timeout)
	defer cancel()

	instances := make(map[string]*instance)

	done := make(chan struct{})
	go func() {
		defer close(done)
		readAnswers(conn, ctx, instances)
	}()

	for _, host := range hosts {
		dst := &net.UDPAddr{IP: net.ParseIP(host), Port: 5353}
		for _, reg := range registrations {
			if err := sendQueryTo(conn, dst, reg.ServiceType); err != nil {
				log.Warn("mdns: unicast query to %s for %s failed: %v", host, reg.ServiceType, err)
			}
		}
	}

	<-ctx.Done()
	conn.SetReadDeadline(time.Now())
	<-done

	records := recordsFromInstances(instances, registrations)
	return discovery.Merge(records), nil
}

func sendQueryTo(conn *net.UDPConn, dst *net.UDPAddr, serviceType string) error {
	name, err := dnsmessage.NewName(serviceType + ".")
	if err != nil {
		return err
	}
	b := dnsmessage.NewBuilder(nil, dnsmessage.Header{ID: 0})
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
	_, err = conn.WriteTo(msg, dst)
	return err
}
