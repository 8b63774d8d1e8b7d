package suites

import (
	"github.com/ahrdadan/uicheck/internal/fixture"
	"github.com/ahrdadan/uicheck/internal/pages"
	"github.com/ahrdadan/uicheck/internal/randstr"
)

// StorefrontFixture is the name of the storefront fixture.
const StorefrontFixture = "DEV Tests"

// Storefront checks account creation on the retail storefront.
func Storefront(pageURL string) *fixture.Fixture {
	account := pages.NewAccountPage()

	return fixture.New(StorefrontFixture).
		Page(pageURL).
		Test("should allow to create a New Account at Alexandra", func(t *fixture.Controller) {
			firstName := "AutoTest " + randstr.Generate(8)

			t.Click(account.CreateAccountLink).
				TypeText(account.FirstName, firstName).
				Expect(account.FirstName.Value()).Eql(firstName)
		})
}
