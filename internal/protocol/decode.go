package protocol

import "github.com/moduledb/moduledb-go/pkg/bsatn"

func decodeBsatnRowList(r *bsatn.Reader) (BsatnRowList, error) {
	var out BsatnRowList
	tag, err := r.ReadSumTag()
	if err != nil {
		return out, err
	}
	switch tag {
	case 0: // FixedSize(u16)
		stride, err := r.ReadU16()
		if err != nil {
			return out, err
		}
		out.HintKind = SizeHintFixed
		out.Stride = stride
	case 1: // RowOffsets(array(u64))
		n, err := r.ReadArrayCount()
		if err != nil {
			return out, err
		}
		offsets := make([]uint64, n)
		for i := range offsets {
			v, err := r.ReadU64()
			if err != nil {
				return out, err
			}
			offsets[i] = v
		}
		out.HintKind = SizeHintOffsets
		out.Offsets = offsets
	default:
		return out, bsatn.UnknownVariant(tag)
	}
	rowsData, err := r.ReadBytes()
	if err != nil {
		return out, err
	}
	out.RowsData = rowsData
	return out, nil
}

func decodeSingleTableRows(r *bsatn.Reader) (SingleTableRows, error) {
	var out SingleTableRows
	table, err := r.ReadString()
	if err != nil {
		return out, err
	}
	rows, err := decodeBsatnRowList(r)
	if err != nil {
		return out, err
	}
	out.Table = table
	out.Rows = rows
	return out, nil
}

func decodeQueryRows(r *bsatn.Reader) (QueryRows, error) {
	var out QueryRows
	n, err := r.ReadArrayCount()
	if err != nil {
		return out, err
	}
	tables := make([]SingleTableRows, n)
	for i := range tables {
		t, err := decodeSingleTableRows(r)
		if err != nil {
			return out, err
		}
		tables[i] = t
	}
	out.Tables = tables
	return out, nil
}

func decodeTableUpdateRows(r *bsatn.Reader) (TableUpdateRows, error) {
	var out TableUpdateRows
	tag, err := r.ReadSumTag()
	if err != nil {
		return out, err
	}
	switch tag {
	case 0: // Persistent(inserts, deletes)
		inserts, err := decodeBsatnRowList(r)
		if err != nil {
			return out, err
		}
		deletes, err := decodeBsatnRowList(r)
		if err != nil {
			return out, err
		}
		out.Kind = TableUpdatePersistent
		out.Inserts = inserts
		out.Deletes = deletes
	case 1: // Event(events)
		events, err := decodeBsatnRowList(r)
		if err != nil {
			return out, err
		}
		out.Kind = TableUpdateEvent
		out.Events = events
	default:
		return out, bsatn.UnknownVariant(tag)
	}
	return out, nil
}

func decodeTableUpdate(r *bsatn.Reader) (TableUpdate, error) {
	var out TableUpdate
	name, err := r.ReadString()
	if err != nil {
		return out, err
	}
	n, err := r.ReadArrayCount()
	if err != nil {
		return out, err
	}
	rows := make([]TableUpdateRows, n)
	for i := range rows {
		row, err := decodeTableUpdateRows(r)
		if err != nil {
			return out, err
		}
		rows[i] = row
	}
	out.TableName = name
	out.Rows = rows
	return out, nil
}

func decodeQuerySetUpdate(r *bsatn.Reader) (QuerySetUpdate, error) {
	var out QuerySetUpdate
	qsID, err := r.ReadU32()
	if err != nil {
		return out, err
	}
	n, err := r.ReadArrayCount()
	if err != nil {
		return out, err
	}
	tables := make([]TableUpdate, n)
	for i := range tables {
		tu, err := decodeTableUpdate(r)
		if err != nil {
			return out, err
		}
		tables[i] = tu
	}
	out.QuerySetID = qsID
	out.Tables = tables
	return out, nil
}

func decodeTransactionUpdate(r *bsatn.Reader) (TransactionUpdate, error) {
	var out TransactionUpdate
	n, err := r.ReadArrayCount()
	if err != nil {
		return out, err
	}
	sets := make([]QuerySetUpdate, n)
	for i := range sets {
		qs, err := decodeQuerySetUpdate(r)
		if err != nil {
			return out, err
		}
		sets[i] = qs
	}
	out.QuerySets = sets
	return out, nil
}

func decodeReducerOutcome(r *bsatn.Reader) (ReducerOutcome, error) {
	var out ReducerOutcome
	tag, err := r.ReadSumTag()
	if err != nil {
		return out, err
	}
	switch tag {
	case 0: // Ok(ret, tx)
		ret, err := r.ReadBytes()
		if err != nil {
			return out, err
		}
		tx, err := decodeTransactionUpdate(r)
		if err != nil {
			return out, err
		}
		out.Kind = ReducerOutcomeOk
		out.Ret = ret
		out.Tx = &tx
	case 1: // OkEmpty
		out.Kind = ReducerOutcomeOkEmpty
	case 2: // Err(bytes)
		msg, err := r.ReadBytes()
		if err != nil {
			return out, err
		}
		out.Kind = ReducerOutcomeErr
		out.ErrMsg = msg
	case 3: // InternalError(string)
		msg, err := r.ReadString()
		if err != nil {
			return out, err
		}
		out.Kind = ReducerOutcomeInternalError
		out.Message = msg
	default:
		return out, bsatn.UnknownVariant(tag)
	}
	return out, nil
}

func decodeProcedureStatus(r *bsatn.Reader) (ProcedureStatus, error) {
	var out ProcedureStatus
	tag, err := r.ReadSumTag()
	if err != nil {
		return out, err
	}
	switch tag {
	case 0: // Returned(bytes)
		ret, err := r.ReadBytes()
		if err != nil {
			return out, err
		}
		out.Kind = ProcedureReturned
		out.Ret = ret
	case 1: // InternalError(string)
		msg, err := r.ReadString()
		if err != nil {
			return out, err
		}
		out.Kind = ProcedureInternalError
		out.Message = msg
	default:
		return out, bsatn.UnknownVariant(tag)
	}
	return out, nil
}

// DecodeServerMessage decodes one decompressed server frame: a u8 variant
// tag followed by its payload. The caller is responsible for stripping the
// compression envelope byte first (see envelope.go).
func DecodeServerMessage(data []byte) (ServerMessage, error) {
	r := bsatn.NewReader(data)
	tag, err := r.ReadU8()
	if err != nil {
		return nil, err
	}
	switch tag {
	case TagInitialConnection:
		identity, err := r.ReadU256() // 32 bytes
		if err != nil {
			return nil, err
		}
		connID, err := r.ReadU128() // 16 bytes
		if err != nil {
			return nil, err
		}
		token, err := r.ReadString()
		if err != nil {
			return nil, err
		}
		return InitialConnection{Identity: identity, ConnectionID: connID, Token: token}, nil

	case TagSubscribeApplied:
		reqID, err := r.ReadU32()
		if err != nil {
			return nil, err
		}
		qsID, err := r.ReadU32()
		if err != nil {
			return nil, err
		}
		rows, err := decodeQueryRows(r)
		if err != nil {
			return nil, err
		}
		return SubscribeApplied{RequestID: reqID, QuerySetID: qsID, Rows: rows}, nil

	case TagUnsubscribeApplied:
		reqID, err := r.ReadU32()
		if err != nil {
			return nil, err
		}
		qsID, err := r.ReadU32()
		if err != nil {
			return nil, err
		}
		some, err := r.ReadOptionTag()
		if err != nil {
			return nil, err
		}
		var rowsPtr *QueryRows
		if some {
			rows, err := decodeQueryRows(r)
			if err != nil {
				return nil, err
			}
			rowsPtr = &rows
		}
		return UnsubscribeApplied{RequestID: reqID, QuerySetID: qsID, Rows: rowsPtr}, nil

	case TagSubscriptionError:
		some, err := r.ReadOptionTag()
		if err != nil {
			return nil, err
		}
		var reqIDPtr *uint32
		if some {
			reqID, err := r.ReadU32()
			if err != nil {
				return nil, err
			}
			reqIDPtr = &reqID
		}
		qsID, err := r.ReadU32()
		if err != nil {
			return nil, err
		}
		errStr, err := r.ReadString()
		if err != nil {
			return nil, err
		}
		return SubscriptionError{RequestID: reqIDPtr, QuerySetID: qsID, Error: errStr}, nil

	case TagTransactionUpdate:
		tx, err := decodeTransactionUpdate(r)
		if err != nil {
			return nil, err
		}
		return tx, nil

	case TagOneOffQueryResult:
		reqID, err := r.ReadU32()
		if err != nil {
			return nil, err
		}
		resultTag, err := r.ReadSumTag()
		if err != nil {
			return nil, err
		}
		switch resultTag {
		case 0: // Ok(QueryRows)
			rows, err := decodeQueryRows(r)
			if err != nil {
				return nil, err
			}
			return OneOffQueryResult{RequestID: reqID, Ok: true, Rows: rows}, nil
		case 1: // Err(string)
			msg, err := r.ReadString()
			if err != nil {
				return nil, err
			}
			return OneOffQueryResult{RequestID: reqID, Ok: false, ErrMsg: msg}, nil
		default:
			return nil, bsatn.UnknownVariant(resultTag)
		}

	case TagReducerResult:
		reqID, err := r.ReadU32()
		if err != nil {
			return nil, err
		}
		ts, err := r.ReadI64()
		if err != nil {
			return nil, err
		}
		outcome, err := decodeReducerOutcome(r)
		if err != nil {
			return nil, err
		}
		return ReducerResult{RequestID: reqID, TimestampNs: ts, Outcome: outcome}, nil

	case TagProcedureResult:
		status, err := decodeProcedureStatus(r)
		if err != nil {
			return nil, err
		}
		ts, err := r.ReadI64()
		if err != nil {
			return nil, err
		}
		dur, err := r.ReadI64()
		if err != nil {
			return nil, err
		}
		reqID, err := r.ReadU32()
		if err != nil {
			return nil, err
		}
		return ProcedureResult{Status: status, TimestampNs: ts, DurationNs: dur, RequestID: reqID}, nil

	default:
		return nil, bsatn.UnknownVariant(tag)
	}
}
