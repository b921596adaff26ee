package server

import (
	"crypto/tls"
	"github.com/1f349/bluebell/logger"
	"github.com/1f349/bluebell/resolver"
	"github.com/miekg/dns"
	"github.com/rcrowley/go-metrics"
	"net"
	"sync"
	"time"
)

type DnsServer struct {
	tcpSocket net.Listener
	udpSocket net.PacketConn
	tlsSocket net.Listener
	tlsConfig *tls.Config
	mu        *sync.RWMutex
	resolver  *resolver.Resolver
	closeFunc func()
}

// SetTls enables DNS over TLS on socket, the server certificate comes from
// config.
func (d *DnsServer) SetTls(socket net.Listener, config *tls.Config) {
	d.mu.Lock()
	defer d.mu.Unlock()
	d.tlsSocket = socket
	d.tlsConfig = config
}

// acceptMsg lets dynamic updates through, everything else follows
// dns.DefaultMsgAcceptFunc
func acceptMsg(dh dns.Header) dns.MsgAcceptAction {
	const qr = 1 << 15
	if dh.Bits&qr != 0 {
		return dns.MsgIgnore
	}
	if int(dh.Bits>>11)&0xF == dns.OpcodeUpdate {
		return dns.MsgAccept
	}
	return dns.DefaultMsgAcceptFunc(dh)
}

func newTransportHandler(res *resolver.Resolver, transport string, stream bool) *dns.ServeMux {
	responseTimer := metrics.GetOrRegisterTimer("request.handler."+transport+".response_time", metrics.DefaultRegistry)
	requestCounter := metrics.GetOrRegisterCounter("request.handler."+transport+".requests", metrics.DefaultRegistry)

	h := &Handler{
		resolver:       res,
		stream:         stream,
		requestCounter: requestCounter,
		responseTimer:  responseTimer,
	}
	mux := dns.NewServeMux()
	mux.HandleFunc(".", h.Handle)
	return mux
}

func (d *DnsServer) Run() {
	d.mu.Lock()
	defer d.mu.Unlock()

	servers := make([]*dns.Server, 0, 3)
	if d.tcpSocket != nil {
		servers = append(servers, &dns.Server{
			Listener:      d.tcpSocket,
			Net:           "tcp",
			Handler:       newTransportHandler(d.resolver, "tcp", true),
			MsgAcceptFunc: acceptMsg,
			ReadTimeout:   2 * time.Second,
			WriteTimeout:  2 * time.Second,
		})
	}
	if d.udpSocket != nil {
		servers = append(servers, &dns.Server{
			PacketConn:    d.udpSocket,
			Net:           "udp",
			Handler:       newTransportHandler(d.resolver, "udp", false),
			MsgAcceptFunc: acceptMsg,
			UDPSize:       65535,
			ReadTimeout:   2 * time.Second,
			WriteTimeout:  2 * time.Second,
		})
	}
	if d.tlsSocket != nil {
		servers = append(servers, &dns.Server{
			Listener:      tls.NewListener(d.tlsSocket, d.tlsConfig),
			Net:           "tcp-tls",
			Handler:       newTransportHandler(d.resolver, "tls", true),
			MsgAcceptFunc: acceptMsg,
			ReadTimeout:   2 * time.Second,
			WriteTimeout:  2 * time.Second,
		})
	}

	start := func(server *dns.Server) {
		err := server.ActivateAndServe()
		if err != nil {
			logger.Logger.Error("Failed to start server", "net", server.Net, "err", err)
		}
	}
	for _, server := range servers {
		go start(server)
	}

	d.closeFunc = func() {
		for _, server := range servers {
			_ = server.Shutdown()
		}
	}
}

func (d *DnsServer) Close() {
	d.mu.RLock()
	defer d.mu.RUnlock()
	if d.closeFunc != nil {
		d.closeFunc()
	}
}

// NewDnsServer creates a server answering from res, either socket may be nil
// to disable that transport.
func NewDnsServer(tcpSocket net.Listener, udpSocket net.PacketConn, res *resolver.Resolver) *DnsServer {
	return &DnsServer{
		tcpSocket: tcpSocket,
		udpSocket: udpSocket,
		mu:        new(sync.RWMutex),
		resolver:  res,
	}
}
