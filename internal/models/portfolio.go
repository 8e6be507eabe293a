package models

// Holding is a named balance shown on the dashboard
type Holding struct {
	Name   string
	Amount float64
}

type Portfolio struct {
	Accounts    []Holding
	Loans       []Holding
	CreditCards []Holding
}

// SamplePortfolio returns the demo balances shown after login
func SamplePortfolio() Portfolio {
	return Portfolio{
		Accounts:    []Holding{{Name: "Savings", Amount: 15000.0}},
		Loans:       []Holding{{Name: "Personal Loan", Amount: 5000.0}},
		CreditCards: []Holding{{Name: "Visa Platinum", Amount: 2500.0}},
	}
}
