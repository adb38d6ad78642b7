// Package ledgertest provides small ledger fixtures for package tests.
package ledgertest

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/opensource-finance/ledgerlens/internal/domain"
	"github.com/opensource-finance/ledgerlens/internal/ledger"
)

// BankingCSV is a five row banking ledger: steps 1,1,2,2,3 with one fraud row.
const BankingCSV = `step,type,amount,nameOrig,oldbalanceOrg,newbalanceOrig,nameDest,oldbalanceDest,newbalanceDest,isFraud,isFlaggedFraud
1,PAYMENT,9839.64,C1231006815,170136.0,160296.36,M1979787155,0.0,0.0,0,0
1,TRANSFER,181.0,C1666544295,181.0,0.0,C1900366749,0.0,0.0,1,0
2,CASH_OUT,181.0,C1305486145,181.0,0.0,C840083671,21182.0,21182.0,0,0
2,DEBIT,52.95,C840083671,41720.0,41667.05,C1634788479,41898.0,41950.95,0,0
3,PAYMENT,1234.56,C1231006815,168902.36,167667.80,M1234567890,0.0,0.0,0,0
`

// CardCSV is a four row card ledger with currency-formatted amounts.
const CardCSV = `id,date,client_id,card_id,amount,use_chip,merchant_id,merchant_city,merchant_state,zip,mcc,errors
7475327,2010-01-01 00:01:00,1556,2972,$-77.00,Swipe Transaction,59935,Beulah,ND,58523.0,5499,
7475328,2010-01-01 00:02:00,561,4575,"$1,214.57",Swipe Transaction,67570,Bettendorf,IA,52722.0,5311,
7475329,2010-01-02 00:02:00,1129,102,$80.00,Online Transaction,27092,ONLINE,,,4829,Bad PIN
7475331,2010-01-02 00:05:00,430,2860,$200.00,Swipe Transaction,27092,Crown Point,IN,46307.0,4829,
`

// CardLabelsJSON marks 7475329 as fraud and 7475327 as clean.
const CardLabelsJSON = `{"target": {"7475327": "No", "7475329": "Yes", "9999999": "Yes"}}`

// WriteFile writes content under t.TempDir and returns its path.
func WriteFile(t testing.TB, name, content string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), name)
	if err := os.WriteFile(path, []byte(content), 0o644); err != nil {
		t.Fatalf("failed to write fixture %s: %v", name, err)
	}
	return path
}

// BankingCache returns a cold DatasetCache over BankingCSV.
func BankingCache(t testing.TB) *ledger.DatasetCache {
	t.Helper()
	path := WriteFile(t, "banking.csv", BankingCSV)
	return ledger.NewDatasetCache(ledger.FileSource{Path: path}, nil, ledger.Options{Schema: domain.SchemaAuto})
}

// CardCache returns a cold DatasetCache over CardCSV joined with CardLabelsJSON.
func CardCache(t testing.TB) *ledger.DatasetCache {
	t.Helper()
	path := WriteFile(t, "card.csv", CardCSV)
	labels := WriteFile(t, "labels.json", CardLabelsJSON)
	return ledger.NewDatasetCache(
		ledger.FileSource{Path: path},
		ledger.NewLabelIndex(ledger.FileLabels{Path: labels}),
		ledger.Options{Schema: domain.SchemaCard},
	)
}
