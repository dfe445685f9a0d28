package redline_test

import (
	"context"
	"fmt"
	"log"

	"github.com/aretw0/redline"
	"github.com/aretw0/redline/pkg/domain"
	"github.com/aretw0/redline/pkg/graphs"
)

// ExampleNew walks a document through submission and an accepted edit using
// the built-in graphs and in-memory storage.
func ExampleNew() {
	eng, err := redline.New()
	if err != nil {
		log.Fatal(err)
	}
	ctx := context.Background()
	author := domain.Actor{ID: "alice", Role: domain.RoleAuthor}

	if _, err := eng.CreateDocument(ctx, "manual", "The maual is good."); err != nil {
		log.Fatal(err)
	}
	inst, err := eng.StartWorkflow(ctx, graphs.FormalReviewID, "manual", author)
	if err != nil {
		log.Fatal(err)
	}
	res, err := eng.AdvanceWorkflow(ctx, domain.AdvanceRequest{
		InstanceID: inst.ID,
		Action:     domain.ActionSubmit,
		Actor:      author,
	})
	if err != nil {
		log.Fatal(err)
	}
	fmt.Println("stage:", res.Instance.CurrentStage())

	prop, err := eng.ProposeFeedback(ctx, &domain.FeedbackItem{
		DocumentID:  "manual",
		Anchor:      domain.Anchor{Text: "maual"},
		Replacement: "manual",
	})
	if err != nil {
		log.Fatal(err)
	}
	fmt.Println(prop.Outcome, prop.Version.Version, prop.Version.Body)

	// Output:
	// stage: gatekeeper_review
	// accepted 2 The manual is good.
}
