/*
Package kcap captures live network traffic from remote Kubernetes nodes and
from running pods, and streams the captured packets into a local packet
capture file or an outbound stream. These are live captures: the remote
capture tool writes its pcap or pcapng container to its standard output, and
kcap relays these octets as they arrive, in order and without reframing them.

A capture target is either a node reachable via SSH, optionally through a
chain of jump hosts, or a pod (container) reached via the kubectl exec
facility. [Resolve] turns the target parameters into a [TransportPlan];
package transport then establishes the plan's transport and hands back an
[Executor]. [BuildCommand] assembles the remote capture command line, and a
[Session] finally runs it, draining the capture stream into an [OutputSink]
until the capture duration elapses, the remote capture ends, or the caller
cancels.

Normally, packet capture streaming goes on until you stop it by cancelling the
context passed to [Session.Run]. Stopping is graceful: the sink gets closed
first, so it contains exactly what had been received up to this point, and
only then the remote capture tool is asked to terminate.
*/
package kcap
