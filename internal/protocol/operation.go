package protocol

import (
	"fmt"

	log "github.com/sirupsen/logrus"

	"github.com/Pablu23/photon/internal/wire"
)

type OperationRequest struct {
	OpCode uint8
	Params ParameterTable
}

type OperationResponse struct {
	OpCode       uint8
	ResponseCode int16
	DebugMessage *string
	Params       ParameterTable
}

type Event struct {
	Code   uint8
	Params ParameterTable
}

func (OperationRequest) Type() ParamType  { return TypeOperationRequest }
func (OperationResponse) Type() ParamType { return TypeOperationResponse }
func (Event) Type() ParamType             { return TypeEventData }

func ReadOperationRequest(r *wire.Reader) (OperationRequest, error) {
	off := r.Offset()
	op, err := r.ReadUint8()
	if err != nil {
		return OperationRequest{}, decodeErr("operation request code", off, err)
	}
	params, err := ReadParameterTable(r)
	if err != nil {
		return OperationRequest{}, err
	}
	return OperationRequest{OpCode: op, Params: params}, nil
}

func (req OperationRequest) write(w *wire.Writer) error {
	w.WriteUint8(req.OpCode)
	return WriteParameterTable(w, req.Params)
}

func ReadOperationResponse(r *wire.Reader) (OperationResponse, error) {
	off := r.Offset()
	op, err := r.ReadUint8()
	if err != nil {
		return OperationResponse{}, decodeErr("operation response code", off, err)
	}
	off = r.Offset()
	code, err := r.ReadInt16()
	if err != nil {
		return OperationResponse{}, decodeErr("response code", off, err)
	}

	off = r.Offset()
	debug, err := ReadParameter(r)
	if err != nil {
		return OperationResponse{}, decodeErr("debug message", off, err)
	}
	resp := OperationResponse{OpCode: op, ResponseCode: code}
	switch d := debug.(type) {
	case String:
		s := string(d)
		resp.DebugMessage = &s
	case Null:
	default:
		log.WithFields(log.Fields{
			"OpCode": op,
			"Type":   d.Type(),
		}).Warn("Debug message is not a string, dropping it")
	}

	if resp.Params, err = ReadParameterTable(r); err != nil {
		return OperationResponse{}, err
	}
	return resp, nil
}

func (resp OperationResponse) write(w *wire.Writer) error {
	w.WriteUint8(resp.OpCode)
	w.WriteInt16(resp.ResponseCode)

	var debug Value = Null{}
	if resp.DebugMessage != nil {
		debug = String(*resp.DebugMessage)
	}
	if err := WriteParameter(w, debug); err != nil {
		return fmt.Errorf("debug message: %w", err)
	}
	return WriteParameterTable(w, resp.Params)
}

func ReadEvent(r *wire.Reader) (Event, error) {
	off := r.Offset()
	code, err := r.ReadUint8()
	if err != nil {
		return Event{}, decodeErr("event code", off, err)
	}
	params, err := ReadParameterTable(r)
	if err != nil {
		return Event{}, err
	}
	return Event{Code: code, Params: params}, nil
}

func (ev Event) write(w *wire.Writer) error {
	w.WriteUint8(ev.Code)
	return WriteParameterTable(w, ev.Params)
}
