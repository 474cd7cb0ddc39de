package claims

import (
	"fmt"
	"strings"
	"time"
)

// Assemble837 renders the minimal 837P envelope accepted by the clearinghouse
// adapter. Segment values beyond the claim identifiers are fixed transaction
// boilerplate.
func Assemble837(c *Claim, now time.Time) string {
	total := float64(c.AmountCents) / 100.0
	segs := []string{
		fmt.Sprintf("ISA*00*          *00*          *ZZ*SENDER         *ZZ*%-15s*%s*%s*^*00501*000000905*0*T*:~",
			payerOrDefault(c.PayerID), now.Format("060102"), now.Format("1504")),
		"GS*HC*SENDER*PAYERID*20250101*0101*1*X*005010X222A1~",
		"ST*837*0001*005010X222A1~",
		fmt.Sprintf("BHT*0019*00*%s*%s*%s*CH~", c.ID, now.Format("20060102"), now.Format("1504")),
		fmt.Sprintf("CLM*%s*%.2f***11:B:1*Y*A*Y*Y~", c.ID, total),
	}
	for _, code := range c.ICDCodes {
		segs = append(segs, fmt.Sprintf("HI*ABK:%s~", strings.ReplaceAll(code, ".", "")))
	}
	for i, cpt := range c.CPTCodes {
		segs = append(segs, fmt.Sprintf("SV1*HC:%s*%.2f*UN*1~", cpt, total), fmt.Sprintf("LX*%d~", i+1))
	}
	segs = append(segs,
		fmt.Sprintf("SE*%d*0001~", len(segs)+1),
		"GE*1*1~",
		"IEA*1*000000905~",
	)
	return strings.Join(segs, "\n")
}

func payerOrDefault(payerID string) string {
	if payerID == "" {
		return "PAYERID"
	}
	if len(payerID) > 15 {
		return payerID[:15]
	}
	return payerID
}
