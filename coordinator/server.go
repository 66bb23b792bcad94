package coordinator

import (
	"net"
	"time"

	"github.com/google/uuid"

	"shardfs/wire"
)

const controlRequestTimeout = 5 * time.Second

// Server accepts coordinator control-protocol connections, one goroutine per
// connection, mirroring the block server's connection-handling style.
type Server struct {
	c        *Coordinator
	listener net.Listener
}

// Listen binds addr and returns a Server ready to Serve.
func Listen(c *Coordinator, addr string) (*Server, error) {
	ln, err := net.Listen("tcp", addr)
	if err != nil {
		return nil, err
	}
	return &Server{c: c, listener: ln}, nil
}

// Addr returns the listener's bound address.
func (s *Server) Addr() net.Addr { return s.listener.Addr() }

// Serve accepts connections until the listener is closed.
func (s *Server) Serve() error {
	for {
		conn, err := s.listener.Accept()
		if err != nil {
			return err
		}
		go s.handleConn(conn)
	}
}

// Close stops accepting new connections.
func (s *Server) Close() error {
	return s.listener.Close()
}

func (s *Server) handleConn(conn net.Conn) {
	defer conn.Close()

	requestID := uuid.NewString()
	line, err := wire.ReadLine(conn, wire.MaxControlRequest, controlRequestTimeout)
	if err != nil {
		s.c.log.Printf("[%s] read error: %v", requestID, err)
		return
	}

	response := HandleRequest(s.c, requestID, line)
	if err := wire.WriteLine(conn, response, controlRequestTimeout); err != nil {
		s.c.log.Printf("[%s] write error: %v", requestID, err)
	}
}
