/*
Package incremental allows to build and execute incremental processing
networks.

Concept

This package offers an opinionated perspective to incremental processing,
where every stage produces partial hypotheses as soon as possible and
revises them when more input arrives. Hypotheses are split into incremental
units, IUs. Every IU is owned by the module that created it and goes
through the following lifecycle:

    live - IU was added and can still be revoked;
    committed - IU is final and immutable;
    revoked - IU was withdrawn.

Modules exchange update messages. Every message is an ordered batch of
updates produced by a single processing round:

    Add - introduce new IU;
    Revoke - withdraw live IU;
    Commit - make IU final.

Modules

Each stage of the network is implemented by a module. Module declares
accepted input types and exactly one output type. It's built by embedding
*Base:

    type Uppercase struct {
        *incremental.Base
    }

    func (u *Uppercase) ProcessUpdate(m incremental.UpdateMessage) (incremental.UpdateMessage, error) {
        ...
    }

Base keeps the current input received from every producer and the current
output of the module. Rederive replaces the output with new derivations and
keeps the longest common prefix, so only changed tail is revoked and added
again.

Modules that originate messages on their own implement Source. Network
binds a trigger to every source, and the source calls it from callbacks or
timers. Triggered events are processed on the source's worker.

Modules can implement Starter and Flusher to get setup and teardown hooks.

Network

Modules are wired into network with subscriptions:

    n := incremental.New(incremental.WithPolicy(incremental.Isolate))
    err := n.Subscribe(mic, asr)
    err = n.Subscribe(asr, printer, incremental.WithCapacity(16))

Cycles are allowed. Once wired, the network is started from its roots:

    err = n.Run(ctx, mic)

Every module is running in its own goroutine. Messages of a single edge are
delivered in order. Network can be stopped gracefully, in which case all
queued messages are processed:

    err = n.Stop()

or terminated, in which case queued messages are discarded:

    n.Terminate()
    err = n.Await()
*/
package incremental
