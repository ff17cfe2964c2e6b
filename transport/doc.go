/*
Package transport establishes the transports for reaching capture targets and
running the remote capture command at their far ends.

A [kcap.ShellChain] gets connected by an [SSHConnector] into a [Chain] of SSH
links: the first hop is dialled directly, while each following hop is dialled
through the SSH connection of its predecessor, so that the SSH session to the
final node is nested inside all the jump host connections. The final link
then runs the capture command in an SSH exec session.

A [kcap.OrchestratorExec] is served by [KubectlExec], which doesn't need to
connect upfront; instead, it spawns "kubectl exec" for running the capture
command inside the pod.

Both satisfy [kcap.Executor].
*/
package transport
