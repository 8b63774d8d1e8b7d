package suites

import (
	"github.com/ahrdadan/uicheck/internal/fixture"
	"github.com/ahrdadan/uicheck/internal/pages"
)

// DemoFixture is the name of the demo site fixture.
const DemoFixture = "Home Page Tests"

// Demo checks product search on the e-commerce demo site. The expected count
// is a snapshot of the live catalog.
func Demo(pageURL string) *fixture.Fixture {
	home := pages.NewHomePage()

	return fixture.New(DemoFixture).
		Page(pageURL).
		Test("Verify Search results count for an Item", func(t *fixture.Controller) {
			t.TypeText(home.InputSearchBox, "pink").
				Click(home.SubmitButton).
				Expect(home.TextResultsFound.InnerText()).Eql("1 result has been found.")
		})
}
