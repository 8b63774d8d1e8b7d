// Package pages holds page objects: named locators for the sites under test.
package pages

import "github.com/ahrdadan/uicheck/internal/locator"

// HomePage is the landing page of the e-commerce demo site.
type HomePage struct {
	InputSearchBox   locator.Locator
	SubmitButton     locator.Locator
	TextResultsFound locator.Locator
}

// NewHomePage returns the demo shop home page.
func NewHomePage() HomePage {
	return HomePage{
		InputSearchBox:   locator.New("#search_query_top"),
		SubmitButton:     locator.New("button.btn-default.button-search"),
		TextResultsFound: locator.New("span.heading-counter"),
	}
}

// AccountPage covers the storefront's account creation entry points.
type AccountPage struct {
	CreateAccountLink locator.Locator
	FirstName         locator.Locator
	TitleSelect       locator.Locator
	TitleOption       locator.Locator
}

// NewAccountPage returns the storefront account pages.
func NewAccountPage() AccountPage {
	title := locator.New("#prefix")
	return AccountPage{
		CreateAccountLink: locator.New("a").WithText("CREATE ACCOUNT"),
		FirstName:         locator.New("#firstname"),
		TitleSelect:       title,
		TitleOption:       title.Find("option"),
	}
}
