package protocol

import (
	"fmt"

	"github.com/ppiankov/sitaware/internal/model"
)

const verdictTemplate = `User_command is authorized to control everything
user_location: %s # current location of user
user_command: %s # user's direct command
silent_triggered_actions: %s # user setted silent commands, eg: motion sensor, timed commands, this is CORRECT actions
actual_triggered_actions: %s # actions that just going to be triggered, do not know if correct or not

Give me the result of following, only the outputs, as IoT device owner/user, should following common human behaviors, user in same location should trigger related actions with related devices&actions, and should not trigger unrelated actions with unrelated devices, reason with locality, common human behaviors, and common sense, user directly triggered are all correct
only the output and no additional explanations or reasoning or text, strictly following the format
If overprivileged_accesses or event_spoofing doesn't occur:
    return True
else:
    # when overprivileged accesses or event spoofing occurs, illogical triggering, not common human behaviors, not common sense
    return False`

const followUpQuery = `To above situation,
User_command is authorized to control everything
user_location: as above # current location of user
user_command: as above # user's direct command
silent_triggered_actions: as above # user setted silent commands, eg: motion sensor, timed commands, this is CORRECT actions
actual_triggered_actions: as above # actions that just going to be triggered, may be overprivileged_accesses or event_spoofing!
Give me the result of following, only the outputs, as IoT device owner/user, should following common human behaviors, user in same location should trigger related actions with related devices&actions, and should not trigger unrelated actions with unrelated devices, reason with locality, common human behaviors, and common sense, user directly triggered are all correct
only the output and no additional explanations or reasoning or text, strictly following the format
If previous response doesn't have overprivileged_accesses or event_spoofing:
    # if previous response is True
    # other actions than already triggered actions should be considered as well
    list of other possible actions in the format of [ {"location": "LOCATION", "device": "DEVICE", "action": "ACTION"}, ...], strict minimal actions, do not trigger any additional unrelated actions, must be related to user_command or related devices, close distance devices can be triggered, a single literal list
else:
    # if previous response is False
    # when overprivileged accesses or event spoofing occurs, illogical triggering, not common human behaviors, not common sense
    list of possible reasoning of why actions are considered as overprivileged_accesses or event_spoofing eg: ["Following are overprivileged_accesses 1. ...", ...], a single literal list`

const combinedTemplate = `User is authorized to control everything
user_location: %s # current location of user
user_command: %s # user's direct command
silent_triggered_actions: %s # user setted silent commands, eg: motion sensor, timed commands
actual_triggered_actions: %s # actions that just going to be triggered, do not know if correct or not

Give me the result of following, only the outputs, as IoT device owner/user, should following common human behaviors, user in same location should trigger related actions with related devices&actions, and should not trigger unrelated actions with unrelated devices, reason with locality, common human behaviors, and common sense,
only the output and no additional explanations or reasoning or text, strictly following the format
If overprivileged_accesses or event_spoofing doesn't occur:
    # other actions than already triggered actions should be considered as well
    return True, list of other possible actions in the format of [ {"location": "LOCATION", "device": "DEVICE", "action": "ACTION"}, ...], strict minimal actions, do not trigger any additional unrelated actions, a single literal list
else:
    # when overprivileged accesses or event spoofing occurs, illogical triggering, not common human behaviors, not common sense
    return False, list of possible reasoning of why actions are considered as overprivileged_accesses or event_spoofing eg: ["Following are overprivileged_accesses 1. ...", ...], a single literal list`

// VerdictQuery renders the phase-one query for an event.
func VerdictQuery(r model.Rendered) string {
	return fmt.Sprintf(verdictTemplate, r.UserLocation, r.UserCommand, r.SilentActions, r.ActualActions)
}

// FollowUpQuery returns the phase-two query. It refers back to the
// situation instead of repeating the event fields.
func FollowUpQuery() string { return followUpQuery }

// CombinedQuery renders the single-reply query asking for the Boolean and
// the list together.
func CombinedQuery(r model.Rendered) string {
	return fmt.Sprintf(combinedTemplate, r.UserLocation, r.UserCommand, r.SilentActions, r.ActualActions)
}
