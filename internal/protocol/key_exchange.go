package protocol

// The encryption handshake is an internal operation: the client sends its
// public key as parameter 1 of operation 0 and the server answers with its
// own public key under the same operation and parameter.
const (
	KeyExchangeOpCode uint8 = 0
	KeyExchangeParam  uint8 = 1
)

func NewKeyExchangeRequest(publicKey []byte) *Message {
	return &Message{
		Header: NewMessageHeader(MessageInternalOperationRequest, false),
		Request: &OperationRequest{
			OpCode: KeyExchangeOpCode,
			Params: ParameterTable{KeyExchangeParam: ByteArray(publicKey)},
		},
	}
}

func NewKeyExchangeResponse(publicKey []byte) *Message {
	return &Message{
		Header: NewMessageHeader(MessageInternalOperationResponse, false),
		Response: &OperationResponse{
			OpCode: KeyExchangeOpCode,
			Params: ParameterTable{KeyExchangeParam: ByteArray(publicKey)},
		},
	}
}

// KeyExchangePublicKey extracts the peer public key from a key exchange
// request or response.
func KeyExchangePublicKey(m *Message) ([]byte, bool) {
	var params ParameterTable
	switch {
	case m.Header.Type == MessageInternalOperationRequest && m.Request != nil && m.Request.OpCode == KeyExchangeOpCode:
		params = m.Request.Params
	case m.Header.Type == MessageInternalOperationResponse && m.Response != nil && m.Response.OpCode == KeyExchangeOpCode:
		params = m.Response.Params
	default:
		return nil, false
	}
	key, ok := params[KeyExchangeParam].(ByteArray)
	if !ok || len(key) == 0 {
		return nil, false
	}
	return key, true
}
