package jsonrpc

import (
	"context"
	"encoding/base64"
	"fmt"
	"net/http"
	"time"

	"github.com/creachadair/jrpc2"
	"github.com/creachadair/jrpc2/handler"
	"github.com/creachadair/jrpc2/jhttp"

	"memdev/blockdev"
	"memdev/device"
	"memdev/errors"
	"memdev/exception"
	"memdev/logx"
	"memdev/monitoring"
)

// --- Error mapping ---

var rpcErrorCodes = map[errors.DeviceErrorCode]jrpc2.Code{
	errors.ErrCodeInternal:       -32000,
	errors.ErrCodeOutOfMemory:    -32001,
	errors.ErrCodeInvalidOffset:  -32002,
	errors.ErrCodeOffsetOverflow: -32003,
	errors.ErrCodeDeviceNotFound: -32004,
	errors.ErrCodeDeviceExists:   -32005,
	errors.ErrCodeDeviceBusy:     -32006,
	errors.ErrCodeHandleClosed:   -32007,
	errors.ErrCodeInvalidRequest: -32602,
}

func toJRPC2Error(err error) error {
	if err == nil {
		return nil
	}
	var devErr *errors.DeviceError
	if ok := asDeviceError(err, &devErr); ok {
		code, known := rpcErrorCodes[devErr.Code]
		if !known {
			code = rpcErrorCodes[errors.ErrCodeInternal]
		}
		return jrpc2.Errorf(code, "%s", devErr.Message).WithData(devErr)
	}
	return jrpc2.Errorf(rpcErrorCodes[errors.ErrCodeInternal], "%s", err.Error())
}

// --- Params/Results ---

type readParams struct {
	Device string `json:"device"`
	Offset uint64 `json:"offset"`
	Length int    `json:"length"`
}

type readResponse struct {
	Data      string `json:"data"`
	BytesRead int    `json:"bytes_read"`
}

type writeParams struct {
	Device string `json:"device"`
	Offset uint64 `json:"offset"`
	Data   string `json:"data"`
}

type writeResponse struct {
	BytesWritten int `json:"bytes_written"`
}

type seekParams struct {
	Device   string `json:"device"`
	Position uint64 `json:"position"`
}

type seekResponse struct {
	Position uint64 `json:"position"`
}

type statParams struct {
	Device string `json:"device"`
}

type statResponse struct {
	BlockSize         int    `json:"block_size"`
	Blocks            int    `json:"blocks"`
	BytesMaterialized uint64 `json:"bytes_materialized"`
	Cursor            uint64 `json:"cursor"`
}

type listResponse struct {
	Devices []string `json:"devices"`
}

type healthResponse struct {
	Status        string `json:"status"`
	UptimeSeconds int64  `json:"uptime_seconds"`
}

// --- Server ---

type Server struct {
	addr         string
	registry     *device.Registry
	maxTransfer  int
	readTimeout  time.Duration
	writeTimeout time.Duration
	httpServer   *http.Server
	startedAt    time.Time
	corsConfig   CORSConfig
}

type CORSConfig struct {
	AllowedOrigins []string
	AllowedMethods []string
	AllowedHeaders []string
	MaxAge         int
}

// DefaultMaxTransfer bounds a single RPC read or write payload.
const DefaultMaxTransfer = 1 << 20

func NewServer(addr string, registry *device.Registry) *Server {
	return &Server{
		addr:        addr,
		registry:    registry,
		maxTransfer: DefaultMaxTransfer,
		corsConfig: CORSConfig{
			AllowedOrigins: []string{},
			AllowedMethods: []string{},
			AllowedHeaders: []string{},
			MaxAge:         0,
		},
	}
}

// SetCORSConfig allows configuring CORS settings
func (s *Server) SetCORSConfig(config CORSConfig) {
	s.corsConfig = config
}

// SetMaxTransfer bounds the byte length a single read or write may carry.
func (s *Server) SetMaxTransfer(n int) {
	if n > 0 {
		s.maxTransfer = n
	}
}

// SetTimeouts configures the listener's read and write deadlines. Zero
// leaves a side unbounded.
func (s *Server) SetTimeouts(read, write time.Duration) {
	s.readTimeout = read
	s.writeTimeout = write
}

func (s *Server) Start() {
	methods := s.buildMethodMap()
	jh := jhttp.NewBridge(methods, &jhttp.BridgeOptions{Server: &jrpc2.ServerOptions{}})

	h := http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		logx.Debug("RPC", "Request from ", extractClientIPFromRequest(r))
		s.setCORSHeaders(w, r)
		if r.Method == http.MethodOptions {
			w.WriteHeader(http.StatusOK)
			return
		}
		jh.ServeHTTP(w, r)
	})

	mux := http.NewServeMux()
	mux.Handle("/", h)

	s.startedAt = time.Now()
	s.httpServer = &http.Server{
		Addr:         s.addr,
		Handler:      mux,
		ReadTimeout:  s.readTimeout,
		WriteTimeout: s.writeTimeout,
	}
	exception.SafeGo("jsonrpc-listener", func() {
		if err := s.httpServer.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			logx.Error("RPC", "Listener stopped: ", err)
		}
	})
	logx.Info("RPC", "JSON-RPC server listening on ", s.addr)
}

// Stop shuts the listener down, waiting for inflight requests up to ctx.
func (s *Server) Stop(ctx context.Context) error {
	if s.httpServer == nil {
		return nil
	}
	return s.httpServer.Shutdown(ctx)
}

func (s *Server) setCORSHeaders(w http.ResponseWriter, r *http.Request) {
	if len(s.corsConfig.AllowedOrigins) == 0 {
		return
	}
	origin := r.Header.Get("Origin")
	for _, allowed := range s.corsConfig.AllowedOrigins {
		if allowed == "*" || allowed == origin {
			w.Header().Set("Access-Control-Allow-Origin", allowed)
			break
		}
	}
	if len(s.corsConfig.AllowedMethods) > 0 {
		w.Header().Set("Access-Control-Allow-Methods", joinHeaderValues(s.corsConfig.AllowedMethods))
	}
	if len(s.corsConfig.AllowedHeaders) > 0 {
		w.Header().Set("Access-Control-Allow-Headers", joinHeaderValues(s.corsConfig.AllowedHeaders))
	}
	if s.corsConfig.MaxAge > 0 {
		w.Header().Set("Access-Control-Max-Age", fmt.Sprintf("%d", s.corsConfig.MaxAge))
	}
}

// Build jrpc2 method map
func (s *Server) buildMethodMap() handler.Map {
	return handler.Map{
		MethodDeviceRead: handler.New(func(ctx context.Context, p readParams) (*readResponse, error) {
			monitoring.RecordRPCRequest(MethodDeviceRead)
			res, err := s.rpcRead(p)
			if err != nil {
				return nil, toJRPC2Error(err)
			}
			return res, nil
		}),
		MethodDeviceWrite: handler.New(func(ctx context.Context, p writeParams) (*writeResponse, error) {
			monitoring.RecordRPCRequest(MethodDeviceWrite)
			res, err := s.rpcWrite(p)
			if err != nil {
				return nil, toJRPC2Error(err)
			}
			return res, nil
		}),
		MethodDeviceSeek: handler.New(func(ctx context.Context, p seekParams) (*seekResponse, error) {
			monitoring.RecordRPCRequest(MethodDeviceSeek)
			res, err := s.rpcSeek(p)
			if err != nil {
				return nil, toJRPC2Error(err)
			}
			return res, nil
		}),
		MethodDeviceStat: handler.New(func(ctx context.Context, p statParams) (*statResponse, error) {
			monitoring.RecordRPCRequest(MethodDeviceStat)
			res, err := s.rpcStat(p)
			if err != nil {
				return nil, toJRPC2Error(err)
			}
			return res, nil
		}),
		MethodDeviceList: handler.New(func(ctx context.Context) (*listResponse, error) {
			monitoring.RecordRPCRequest(MethodDeviceList)
			return &listResponse{Devices: s.registry.Names()}, nil
		}),
		MethodHealthCheck: handler.New(func(ctx context.Context) (*healthResponse, error) {
			monitoring.RecordRPCRequest(MethodHealthCheck)
			return &healthResponse{
				Status:        "ok",
				UptimeSeconds: int64(time.Since(s.startedAt).Seconds()),
			}, nil
		}),
	}
}

// --- Handlers ---

func (s *Server) rpcRead(p readParams) (*readResponse, error) {
	if p.Length < 0 || p.Length > s.maxTransfer {
		return nil, errors.NewError(errors.ErrCodeInvalidRequest,
			fmt.Sprintf("Read length %d outside [0, %d]", p.Length, s.maxTransfer))
	}
	dev, err := s.registry.Lookup(p.Device)
	if err != nil {
		return nil, err
	}
	buf := make([]byte, p.Length)
	n, err := dev.ReadAt(buf, int64(p.Offset))
	if err != nil {
		return nil, err
	}
	return &readResponse{
		Data:      base64.StdEncoding.EncodeToString(buf[:n]),
		BytesRead: n,
	}, nil
}

func (s *Server) rpcWrite(p writeParams) (*writeResponse, error) {
	data, err := base64.StdEncoding.DecodeString(p.Data)
	if err != nil {
		return nil, errors.NewError(errors.ErrCodeInvalidRequest, "Data is not valid base64")
	}
	if len(data) > s.maxTransfer {
		return nil, errors.NewError(errors.ErrCodeInvalidRequest,
			fmt.Sprintf("Write length %d exceeds maximum %d", len(data), s.maxTransfer))
	}
	dev, err := s.registry.Lookup(p.Device)
	if err != nil {
		return nil, err
	}
	n, err := dev.WriteAt(data, int64(p.Offset))
	if err != nil {
		return nil, err
	}
	return &writeResponse{BytesWritten: n}, nil
}

func (s *Server) rpcSeek(p seekParams) (*seekResponse, error) {
	dev, err := s.registry.Lookup(p.Device)
	if err != nil {
		return nil, err
	}
	dev.Seek(p.Position)
	return &seekResponse{Position: dev.Position()}, nil
}

func (s *Server) rpcStat(p statParams) (*statResponse, error) {
	dev, err := s.registry.Lookup(p.Device)
	if err != nil {
		return nil, err
	}
	stats := dev.Stats()
	return &statResponse{
		BlockSize:         blockdev.BlockSize,
		Blocks:            stats.Blocks,
		BytesMaterialized: stats.BytesMaterialized,
		Cursor:            stats.Cursor,
	}, nil
}
