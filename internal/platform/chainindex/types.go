package chainindex

import (
	"encoding/hex"

	"github.com/tealbay/nftmarketd/internal/domain"
)

// apiUtxo is the chain-index wire form of an unspent output.
type apiUtxo struct {
	Address     string     `json:"address"`
	TxHash      string     `json:"tx_hash"`
	OutputIndex uint64     `json:"output_index"`
	Amount      []apiAsset `json:"amount"`
	InlineDatum string     `json:"inline_datum"`
	DataHash    string     `json:"data_hash"`
}

// apiAsset is one unit/quantity pair of an output's bundle.
type apiAsset struct {
	Unit     string `json:"unit"`
	Quantity int64  `json:"quantity,string"`
}

// apiError is the chain-index error envelope.
type apiError struct {
	StatusCode int    `json:"status_code"`
	Error      string `json:"error"`
	Message    string `json:"message"`
}

// apiSubmitResponse is the submission endpoint's success body.
type apiSubmitResponse struct {
	TxID string `json:"tx_id"`
}

func (u apiUtxo) toDomain() (domain.UTXO, error) {
	value := domain.Value{}
	for _, a := range u.Amount {
		value.Add(a.Unit, a.Quantity)
	}

	var datum []byte
	if u.InlineDatum != "" {
		raw, err := hex.DecodeString(u.InlineDatum)
		if err != nil {
			return domain.UTXO{}, err
		}
		datum = raw
	}

	return domain.UTXO{
		OutRef:     domain.OutRef{TxHash: u.TxHash, Index: u.OutputIndex},
		Address:    u.Address,
		Value:      value,
		DatumBytes: datum,
	}, nil
}
