package engine

import "math"

// Reference implementations of the six pipeline stages. The formulas are the
// domain plug-in defaults; the pipeline only depends on each stage being a
// pure function of upstream outputs and its own parameter group.

func runEngineeringStage(params ParamGroup) map[string]interface{} {
	wellCount := params.Float("well_count", 1)
	productivityIndex := params.Float("productivity_index", 1)
	declineRate := params.Float("decline_rate", 0.10)
	reserves := params.Float("initial_reserves", 0)

	// Plateau rate in bbl/year across the whole field.
	initialRate := wellCount * productivityIndex * 36500

	return map[string]interface{}{
		"well_count":           wellCount,
		"initial_rate":         initialRate,
		"decline_rate":         declineRate,
		"recoverable_reserves": reserves,
	}
}

func runProductionStage(params ParamGroup, engineering map[string]interface{}) map[string]interface{} {
	lifetime := int(params.Float("project_lifetime", 20))
	if lifetime < 1 {
		lifetime = 1
	}
	initialRate := floatFrom(engineering, "initial_rate")
	declineRate := floatFrom(engineering, "decline_rate")
	reserves := floatFrom(engineering, "recoverable_reserves")

	// Exponential decline, cumulative production capped at recoverable reserves.
	annual := make([]float64, lifetime)
	cumulative := 0.0
	for t := 0; t < lifetime; t++ {
		q := initialRate * math.Exp(-declineRate*float64(t))
		if reserves > 0 && cumulative+q > reserves {
			q = reserves - cumulative
			if q < 0 {
				q = 0
			}
		}
		annual[t] = q
		cumulative += q
	}

	return map[string]interface{}{
		"annual_production": annual,
		"total_production":  cumulative,
		"project_lifetime":  lifetime,
	}
}

func runSalesStage(params ParamGroup, production map[string]interface{}) map[string]interface{} {
	oilPrice := params.Float("oil_price", 0)
	annualProduction := floatsFrom(production, "annual_production")

	annualRevenue := make([]float64, len(annualProduction))
	total := 0.0
	for t, q := range annualProduction {
		annualRevenue[t] = q * oilPrice
		total += annualRevenue[t]
	}

	return map[string]interface{}{
		"annual_revenue": annualRevenue,
		"total_revenue":  total,
		"oil_price":      oilPrice,
	}
}

func runCapexStage(params ParamGroup, engineering map[string]interface{}) map[string]interface{} {
	wellCount := floatFrom(engineering, "well_count")
	costPerWell := params.Float("cost_per_well", 0)
	facilitiesCost := params.Float("facilities_cost", 0)

	drillingCost := costPerWell * wellCount
	totalCapex := drillingCost + facilitiesCost

	return map[string]interface{}{
		"drilling_cost":   drillingCost,
		"facilities_cost": facilitiesCost,
		"total_capex":     totalCapex,
	}
}

func runOpexStage(params ParamGroup, production map[string]interface{}) map[string]interface{} {
	fixedOpex := params.Float("fixed_opex", 0)
	variableRate := params.Float("variable_opex_rate", 0)
	annualProduction := floatsFrom(production, "annual_production")

	annualOpex := make([]float64, len(annualProduction))
	total := 0.0
	for t, q := range annualProduction {
		annualOpex[t] = fixedOpex + variableRate*q
		total += annualOpex[t]
	}

	return map[string]interface{}{
		"annual_opex": annualOpex,
		"total_opex":  total,
	}
}

func runTaxStage(params ParamGroup, sales, capex, opex map[string]interface{}) map[string]interface{} {
	taxRate := params.Float("tax_rate", 0)
	miningTaxRate := params.Float("mining_tax_rate", 0)
	annualRevenue := floatsFrom(sales, "annual_revenue")
	annualOpex := floatsFrom(opex, "annual_opex")

	annualTax := make([]float64, len(annualRevenue))
	total := 0.0
	for t, revenue := range annualRevenue {
		operating := 0.0
		if t < len(annualOpex) {
			operating = annualOpex[t]
		}
		profitTax := (revenue - operating) * taxRate
		if profitTax < 0 {
			profitTax = 0
		}
		annualTax[t] = profitTax + revenue*miningTaxRate
		total += annualTax[t]
	}

	return map[string]interface{}{
		"annual_tax": annualTax,
		"total_tax":  total,
	}
}

func runMetricsStage(discountRate float64, sales, capex, opex, taxes map[string]interface{}) map[string]float64 {
	annualRevenue := floatsFrom(sales, "annual_revenue")
	annualOpex := floatsFrom(opex, "annual_opex")
	annualTax := floatsFrom(taxes, "annual_tax")
	totalCapex := floatFrom(capex, "total_capex")

	// Year 0 is the full capital outlay; years 1..T are revenue - opex - tax.
	cashflows := make([]float64, len(annualRevenue)+1)
	cashflows[0] = -totalCapex
	for t := range annualRevenue {
		cf := annualRevenue[t]
		if t < len(annualOpex) {
			cf -= annualOpex[t]
		}
		if t < len(annualTax) {
			cf -= annualTax[t]
		}
		cashflows[t+1] = cf
	}

	npv := NetPresentValue(cashflows, discountRate)

	return map[string]float64{
		MetricNPV:     npv,
		MetricIRR:     InternalRateOfReturn(cashflows),
		MetricPI:      ProfitabilityIndex(npv, totalCapex),
		MetricPayback: float64(PaybackPeriod(cashflows)),
	}
}

func floatFrom(m map[string]interface{}, key string) float64 {
	f, _ := asFloat(m[key])
	return f
}

func floatsFrom(m map[string]interface{}, key string) []float64 {
	switch v := m[key].(type) {
	case []float64:
		return v
	case []interface{}:
		out := make([]float64, len(v))
		for i, item := range v {
			out[i], _ = asFloat(item)
		}
		return out
	}
	return nil
}
