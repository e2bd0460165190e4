package llm

import (
	"math"
	"strconv"
	"strings"

	"github.com/ledgerworks/coriander/internal/model"
)

// uncertaintyMarker is the fixed prefix the system instructions require
// when the model cannot answer from the allow-list. The remainder of the
// line is the web-search query to disambiguate with.
const uncertaintyMarker = "None"

// Prompt templates. Which one applies depends on what context is
// available: the company industry for both kinds, and additionally the
// predicted category for tax codes.
const (
	baseCategoryPrompt       = `Using only the provided list of categories, what type of business expense would a transaction from "$NAME" for "$AMOUNT" dollars by a business in the "$INDUSTRY" industry be? Categories: $CLASSIFICATIONS`
	noIndustryCategoryPrompt = `Using only the provided list of categories, what type of business expense would a transaction from "$NAME" for "$AMOUNT" dollars be? Categories: $CLASSIFICATIONS`

	baseTaxCodePrompt                  = `Using only the provided list of tax codes, what type of business expense would a transaction from "$NAME" for "$AMOUNT" dollars by a business in the "$INDUSTRY" industry be? The transaction took place in $LOCATION and is categorized as $CATEGORY. Tax codes: $CLASSIFICATIONS`
	noIndustryTaxCodePrompt            = `Using only the provided list of tax codes, what type of business expense would a transaction from "$NAME" for "$AMOUNT" dollars be? The transaction took place in $LOCATION and is categorized as $CATEGORY. Tax codes: $CLASSIFICATIONS`
	noCategoryTaxCodePrompt            = `Using only the provided list of tax codes, what type of business expense would a transaction from "$NAME" for "$AMOUNT" dollars by a business in the "$INDUSTRY" industry be? The transaction took place in $LOCATION. Tax codes: $CLASSIFICATIONS`
	noCategoryAndIndustryTaxCodePrompt = `Using only the provided list of tax codes, what type of business expense would a transaction from "$NAME" for "$AMOUNT" dollars be? The transaction took place in $LOCATION. Tax codes: $CLASSIFICATIONS`
)

const categorySystemInstructions = `You are an assistant that provides concise answers.
You are helping a user categorize their transaction for accounting business expense purposes.
Only respond with the category that best fits the transaction based on the provided description and categories.
If no description is provided, try to use the name of the transaction to infer the category.
If you are unsure, respond with "None" followed by just the search query to search the web.`

const taxCodeSystemInstructions = `You are an assistant that provides concise answers.
You are helping a user identify the tax code on their transaction for accounting business expense purposes.
Only respond with the tax code that best fits the transaction based on the provided description and tax codes.
If no description is provided, try to use the name of the transaction to infer the tax code.
If you are unsure, respond with "None" followed by just the search query to search the web.`

func systemInstructions(kind model.Kind) string {
	if kind == model.KindTaxCode {
		return taxCodeSystemInstructions
	}
	return categorySystemInstructions
}

// buildPrompt selects the template matching the available context and
// fills in the transaction name, absolute amount and the full allow-list.
// predictedCategory is only consulted for tax-code prompts.
func buildPrompt(txn model.ForReviewTransaction, names []string, company model.CompanyInfo, kind model.Kind, predictedCategory string) string {
	industryKnown := company.IndustryKnown()

	var template string
	if kind == model.KindCategory {
		template = noIndustryCategoryPrompt
		if industryKnown {
			template = baseCategoryPrompt
		}
	} else {
		switch {
		case industryKnown && predictedCategory != "":
			template = baseTaxCodePrompt
		case industryKnown:
			template = noCategoryTaxCodePrompt
		case predictedCategory != "":
			template = noIndustryTaxCodePrompt
		default:
			template = noCategoryAndIndustryTaxCodePrompt
		}
	}

	amount := strconv.FormatFloat(math.Abs(txn.Amount), 'f', 2, 64)
	replacer := strings.NewReplacer(
		"$NAME", txn.Name(),
		"$AMOUNT", amount,
		"$INDUSTRY", company.Industry,
		"$LOCATION", jurisdiction(company.Location),
		"$CATEGORY", predictedCategory,
		"$CLASSIFICATIONS", strings.Join(names, ", "),
	)
	return replacer.Replace(template)
}

func jurisdiction(loc model.Location) string {
	if loc.SubRegion == "" {
		return loc.Country
	}
	return loc.SubRegion + ", " + loc.Country
}
