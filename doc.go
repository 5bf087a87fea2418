/*
Package parley is a conversational flow engine. It executes authored dialog programs one
turn at a time: a turn takes the saved state of a conversation and one user request, walks
the program graph until it needs more input, and returns the new state plus the traces
(messages, choices, debug events) to show the user.

# Concepts

A Version is a published snapshot of a project: its root program and its language model
(intents, slots and utterance samples). Programs are graphs of typed nodes (speak,
interaction, capture, set, if, api, flow, generative...). The conversation state is a stack
of frames, one per entered program, plus global variables; it is plain JSON and can be kept
in any session store.

Text requests are classified into intents either in process, by matching the version's
utterance samples, or by a remote NLU service. When an intent lacks required entities the
engine keeps prompting for them across turns before routing the request.

# Usage

The App type wires everything from configuration:

	cfg, err := config.Load("parley.yaml")
	if err != nil {
		log.Fatal(err)
	}
	app, err := parley.New(ctx, cfg)
	if err != nil {
		log.Fatal(err)
	}
	defer app.Close()

	// Serve the HTTP API...
	http.ListenAndServe(cfg.Server.Addr, app.Handler())

	// ...or drive a session directly.
	traces, err := app.Turn(ctx, "user-1", "v1", domain.NewTextRequest("hi"))

The cmd/parley binary exposes the same App through the serve, chat, validate and graph
commands.
*/
package parley
