package services

import (
	"encoding/base64"
	"encoding/json"
	"net/http"
	"os"
	"path/filepath"
)

// Bank is a payout destination for the bank transfer rail. The code goes into
// the withdrawal destination as bankCode.
type Bank struct {
	Code     string `json:"code"`
	Name     string `json:"name"`
	LogoData string `json:"logoData"`
}

const (
	logosDir = "./static/bank-logos"
	demoSVG  = `<svg xmlns="http://www.w3.org/2000/svg" viewBox="0 0 200 200"><rect width="200" height="200" fill="#f0f0f0"/><path d="M100 60c-22.1 0-40 17.9-40 40s17.9 40 40 40 40-17.9 40-40-17.9-40-40-40zm0 65c-13.8 0-25-11.2-25-25s11.2-25 25-25 25 11.2 25 25-11.2 25-25 25z" fill="#999"/><text x="100" y="170" text-anchor="middle" font-family="Arial" font-size="14" fill="#666">BANK</text></svg>`
)

var bankLogos = map[string]string{
	"CHASUS33": "chase.svg",
	"BOFAUS3N": "bank-of-america.svg",
	"WFBIUS6S": "wells-fargo.svg",
	"CITIUS33": "citibank.svg",
	"USBKUS44": "us-bank.svg",
	"PNCCUS33": "pnc.svg",
	"TDOMUS33": "td-bank.svg",
	"MRMDUS33": "capital-one.svg",
	"FRBBUS33": "first-republic.svg",
	"ALLYUS31": "ally.svg",
	"CHFGUS44": "charles-schwab.svg",
	"DISCUS33": "discover.svg",
}

var supportedBanks = []Bank{
	{Code: "CHASUS33", Name: "JPMorgan Chase"},
	{Code: "BOFAUS3N", Name: "Bank of America"},
	{Code: "WFBIUS6S", Name: "Wells Fargo"},
	{Code: "CITIUS33", Name: "Citibank"},
	{Code: "USBKUS44", Name: "U.S. Bank"},
	{Code: "PNCCUS33", Name: "PNC Bank"},
	{Code: "TDOMUS33", Name: "TD Bank"},
	{Code: "MRMDUS33", Name: "Capital One"},
	{Code: "FRBBUS33", Name: "First Republic Bank"},
	{Code: "ALLYUS31", Name: "Ally Bank"},
	{Code: "CHFGUS44", Name: "Charles Schwab Bank"},
	{Code: "DISCUS33", Name: "Discover Bank"},
}

type BankService struct{}

func NewBankService() *BankService {
	return &BankService{}
}

func (bs *BankService) GetAllBanks(w http.ResponseWriter, r *http.Request) {
	banks := make([]Bank, len(supportedBanks))
	copy(banks, supportedBanks)

	for i := range banks {
		banks[i].LogoData = bs.LoadLogo(banks[i].Code)
	}

	w.Header().Set("Content-Type", "application/json")
	w.Header().Set("Cache-Control", "public, max-age=86400")
	json.NewEncoder(w).Encode(banks)
}

func (bs *BankService) LoadLogo(code string) string {
	filename, ok := bankLogos[code]
	if !ok {
		return "data:image/svg+xml;base64," + base64.StdEncoding.EncodeToString([]byte(demoSVG))
	}

	path := filepath.Join(logosDir, filename)
	if data, err := os.ReadFile(path); err == nil {
		return "data:image/svg+xml;base64," + base64.StdEncoding.EncodeToString(data)
	}

	return "data:image/svg+xml;base64," + base64.StdEncoding.EncodeToString([]byte(demoSVG))
}
