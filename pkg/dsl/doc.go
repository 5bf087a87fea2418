/*
Package dsl builds parley programs in Go.

It is an alternative to authoring versions/ and programs/ files: a fluent builder produces
the same domain.Program values the file loader decodes, checked by the same graph
validation. It is handy for tests, for generated flows and for embedding small dialogs in
a host application.

Example usage:

	b := dsl.New("pizza")

	b.Add("start").Start().Go("menu")

	b.Add("menu").Interaction().
		On("order", "confirm", domain.SlotMapping{Slot: "size", Variable: "size"}).
		NoMatch("", "Sorry, what size?")

	b.Add("confirm").Speak("One {size} pizza coming up!")

	program, err := b.Build()
	if err != nil {
		log.Fatal(err)
	}

	api, err := dsl.Project(&domain.Version{ID: "v1", RootProgramID: "pizza"}, program)
	// ... pass api to parley.WithDataAPI or interact.New
*/
package dsl
