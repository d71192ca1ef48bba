package bulkfile

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestDecode(t *testing.T) {
	doc, err := Decode([]byte(`{
		"group_header": {
			"file_reference": "FREF-1",
			"file_name": "payments.json",
			"file_status": "01",
			"number_of_batches": 1
		},
		"payment_information": [{
			"payment_information_identification": "PI-1",
			"debtor_account": "0011223344",
			"requested_execution_date": "2026-09-15",
			"bulk_status": "01",
			"credit_transfer_transaction_information": [{
				"amount": "1250.75",
				"currency": "USD",
				"creditor_name": "Acme Supplies Inc",
				"creditor_account": "0044556677",
				"creditor_country": "US",
				"transaction_status": "01"
			}]
		}]
	}`))
	require.NoError(t, err)

	assert.Equal(t, "FREF-1", doc.Header.FileReference)
	require.Len(t, doc.Instructions, 1)
	require.Len(t, doc.Instructions[0].Transfers, 1)
	assert.Equal(t, "1250.75", doc.Instructions[0].Transfers[0].Amount.String())
}

func TestDecodeRejectsMissingFileReference(t *testing.T) {
	_, err := Decode([]byte(`{"group_header": {"file_name": "x.json"}}`))
	assert.ErrorContains(t, err, "missing file reference")
}

func TestDecodeRejectsMalformedPayload(t *testing.T) {
	_, err := Decode([]byte(`{"group_header": `))
	assert.Error(t, err)
}
