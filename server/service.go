package server

import (
	"context"
	"time"

	"spectro-rpc/message"
	"spectro-rpc/observability"
	"spectro-rpc/protocol"
)

// handleEvent turns one request event into its response. It never fails: any
// error is logged and answered with the error signal.
func (svr *Server) handleEvent(p peer, ev protocol.Event) (resp protocol.Response) {
	defer func() {
		if r := recover(); r != nil {
			p.logger.Error().Interface("panic", r).Msg("call panicked, sending error signal")
			resp = protocol.ErrorResponse()
		}
	}()

	name, args, err := protocol.Request{Event: ev}.ResolveCall(svr.table)
	if err != nil {
		return svr.reject(p, err)
	}

	call := &message.Call{
		Name:     name,
		Args:     args,
		ConnID:   p.id,
		Received: time.Now(),
	}
	result := svr.handler(context.Background(), call)
	if result.Err != nil {
		p.logger.Warn().Str("call", name).Err(result.Err).Msg("call failed, sending error signal")
		return protocol.ErrorResponse()
	}

	resp, err = protocol.NewResponse(svr.table, name, result.Value)
	if err != nil {
		p.logger.Error().Str("call", name).Err(err).Msg("encode response, sending error signal")
		return protocol.ErrorResponse()
	}
	return resp
}

// reject answers a request that never became a call.
func (svr *Server) reject(p peer, err error) protocol.Response {
	p.logger.Warn().Err(err).Msg("bad request, sending error signal")
	observability.RecordProtocolError()
	return protocol.ErrorResponse()
}

// businessHandler sits at the center of the middleware chain.
func (svr *Server) businessHandler(ctx context.Context, call *message.Call) *message.Result {
	value, err := svr.session.Dispatch(ctx, call)
	if err != nil {
		return message.Failed(call.Name, err)
	}
	return &message.Result{Name: call.Name, Value: value}
}
