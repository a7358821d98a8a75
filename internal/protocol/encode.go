package protocol

import "github.com/moduledb/moduledb-go/pkg/bsatn"

// EncodeSubscribe serializes a Subscribe client message.
func EncodeSubscribe(m Subscribe) []byte {
	w := bsatn.NewWriter(16 + 8*len(m.Queries))
	w.WriteU8(TagSubscribe)
	w.WriteU32(m.RequestID)
	w.WriteU32(m.QuerySetID)
	w.WriteArrayCount(len(m.Queries))
	for _, q := range m.Queries {
		w.WriteString(q)
	}
	return w.Bytes()
}

// EncodeUnsubscribe serializes an Unsubscribe client message.
func EncodeUnsubscribe(m Unsubscribe) []byte {
	w := bsatn.NewWriter(16)
	w.WriteU8(TagUnsubscribe)
	w.WriteU32(m.RequestID)
	w.WriteU32(m.QuerySetID)
	w.WriteU8(m.Flags)
	return w.Bytes()
}

// EncodeOneOffQuery serializes a OneOffQuery client message.
func EncodeOneOffQuery(m OneOffQuery) []byte {
	w := bsatn.NewWriter(16 + len(m.Query))
	w.WriteU8(TagOneOffQuery)
	w.WriteU32(m.RequestID)
	w.WriteString(m.Query)
	return w.Bytes()
}

// EncodeCallReducer serializes a CallReducer client message. Args must
// already be the BSATN-encoded argument product (see pkg/schema.EncodeReducerArgs).
func EncodeCallReducer(m CallReducer) []byte {
	w := bsatn.NewWriter(24 + len(m.Reducer) + len(m.Args))
	w.WriteU8(TagCallReducer)
	w.WriteU32(m.RequestID)
	w.WriteU8(m.Flags)
	w.WriteString(m.Reducer)
	w.WriteBytes(m.Args)
	return w.Bytes()
}

// EncodeCallProcedure serializes a CallProcedure client message.
func EncodeCallProcedure(m CallProcedure) []byte {
	w := bsatn.NewWriter(24 + len(m.Procedure) + len(m.Args))
	w.WriteU8(TagCallProcedure)
	w.WriteU32(m.RequestID)
	w.WriteU8(m.Flags)
	w.WriteString(m.Procedure)
	w.WriteBytes(m.Args)
	return w.Bytes()
}
