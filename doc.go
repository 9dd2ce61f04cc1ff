/*
Package baton runs implicit staged pipelines: chains of independently deployed
stages that never call each other directly.

Each stage reads the artifacts of its predecessors from a shared blob store, runs
its own computation, writes its artifacts under names every stage agrees on, and
then hands the baton to the next stage with a fire-and-forget trigger. The only
coordination between stages is the artifact naming table and that trigger.

# Stage graph

The topology lives in one file shared by every stage:

	pipeline: mnist
	artifacts:
	  - {role: mnist-preprocess, kind: train-images, bucket: mnist-normalize, key: X_Train4D_normalize}
	stages:
	  - name: mnist-preprocess
	    work: mnist.preprocess
	    outputs: [{kind: train-images}]
	    next: mnist-model-build
	  - name: mnist-model-build
	    work: mnist.build
	    inputs: [{role: mnist-preprocess, kind: train-images}]

# Usage

	g, err := config.LoadGraph("pipeline.yaml")
	if err != nil {
		log.Fatal(err)
	}
	reg := registry.NewRegistry()
	reg.Register("mnist.preprocess", preprocess)
	reg.Register("mnist.build", build)

	p, err := baton.New(g, baton.WithRegistry(reg), baton.WithStore(store))
	if err != nil {
		log.Fatal(err)
	}
	defer p.Shutdown(context.Background())

	resp, err := p.Invoke(ctx, "mnist-preprocess", domain.InvocationRequest{})

Without WithInvoker the next stage runs in the same process, which makes a whole
chain runnable locally. In a function deployment the invoker is the gateway
adapter and each process serves its own stage through pkg/adapters/http.
*/
package baton
